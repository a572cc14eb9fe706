package ml

import (
	"context"
	"fmt"
	"math"
)

// BoostingConfig controls the gradient boosted classifier.
type BoostingConfig struct {
	Stages          int
	MaxDepth        int
	LearningRate    float64
	MinSamplesSplit int
	MinSamplesLeaf  int
}

// Boosting is a multinomial-deviance gradient boosted ensemble with one
// regression tree per class per stage. Leaf values are unshrunk; the
// learning rate is applied at prediction time.
type Boosting struct {
	Init         []float64
	LearningRate float64
	Stages       [][]Tree // [stage][class]
}

func fitBoosting(ctx context.Context, data *binnedMatrix, y []int, k int, cfg BoostingConfig) (*Boosting, error) {
	if cfg.Stages <= 0 {
		return nil, fmt.Errorf("boosting needs at least one stage")
	}
	n := len(y)
	counts := make([]float64, k)
	for _, c := range y {
		counts[c]++
	}
	init := make([]float64, k)
	for c := range init {
		init[c] = math.Log(math.Max(counts[c]/float64(n), 1e-15))
	}

	raw := make([][]float64, n)
	for i := range raw {
		raw[i] = append([]float64(nil), init...)
	}
	m := &Boosting{Init: init, LearningRate: cfg.LearningRate, Stages: make([][]Tree, 0, cfg.Stages)}
	params := treeParams{maxDepth: cfg.MaxDepth, minSplit: cfg.MinSamplesSplit, minLeaf: cfg.MinSamplesLeaf}

	prob := make([][]float64, n)
	resid := make([]float64, n)
	idx := make([]int, n)
	leafOf := make([][]int, k)
	for c := range leafOf {
		leafOf[c] = make([]int, n)
	}
	for stage := 0; stage < cfg.Stages; stage++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range raw {
			prob[i] = softmax(raw[i])
		}
		trees := make([]Tree, k)
		for c := 0; c < k; c++ {
			for i := range resid {
				target := 0.0
				if y[i] == c {
					target = 1
				}
				resid[i] = target - prob[i][c]
				idx[i] = i
			}
			b := &regTreeBuilder{data: data, r: resid, k: k, params: params, tree: &Tree{}, leafOf: leafOf[c]}
			b.build(idx, 0)
			trees[c] = *b.tree
		}
		// raw scores move only after every class of the stage is fitted, so
		// all K trees see the same probabilities
		for c := 0; c < k; c++ {
			for i := 0; i < n; i++ {
				raw[i][c] += cfg.LearningRate * trees[c].Value[leafOf[c][i]][0]
			}
		}
		m.Stages = append(m.Stages, trees)
	}
	return m, nil
}

// PredictProba returns softmax(init + lr·Σ tree outputs).
func (m *Boosting) PredictProba(row []float64) []float64 {
	raw := append([]float64(nil), m.Init...)
	for _, stage := range m.Stages {
		for c := range stage {
			raw[c] += m.LearningRate * stage[c].Predict(row)[0]
		}
	}
	return softmax(raw)
}

func softmax(raw []float64) []float64 {
	maxV := math.Inf(-1)
	for _, v := range raw {
		maxV = math.Max(maxV, v)
	}
	out := make([]float64, len(raw))
	var sum float64
	for i, v := range raw {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

type regTreeBuilder struct {
	data   *binnedMatrix
	r      []float64
	k      int
	params treeParams
	tree   *Tree
	leafOf []int
}

func (b *regTreeBuilder) build(idx []int, depth int) int {
	node := b.tree.addNode()
	var sum float64
	for _, i := range idx {
		sum += b.r[i]
	}

	if depth >= b.params.maxDepth || len(idx) < b.params.minSplit {
		b.makeLeaf(node, idx)
		return node
	}
	feat, split, ok := b.bestSplit(idx, sum)
	if !ok {
		b.makeLeaf(node, idx)
		return node
	}

	nl := partition(idx, b.data.bins[feat], split)
	b.tree.Feature[node] = feat
	b.tree.Threshold[node] = b.data.thresholds[feat][split]
	left := b.build(idx[:nl], depth+1)
	right := b.build(idx[nl:], depth+1)
	b.tree.Left[node] = left
	b.tree.Right[node] = right
	return node
}

// makeLeaf stores one Newton step for the multinomial deviance.
func (b *regTreeBuilder) makeLeaf(node int, idx []int) {
	var num, den float64
	for _, i := range idx {
		r := b.r[i]
		num += r
		a := math.Abs(r)
		den += a * (1 - a)
		b.leafOf[i] = node
	}
	v := 0.0
	if den > 1e-150 {
		v = float64(b.k-1) / float64(b.k) * num / den
	}
	b.tree.Value[node] = []float64{v}
}

// bestSplit maximizes the variance reduction sL²/nL + sR²/nR - s²/n.
func (b *regTreeBuilder) bestSplit(idx []int, sum float64) (int, int, bool) {
	n := float64(len(idx))
	base := sum * sum / n
	bestGain := 1e-12
	bestFeat, bestSplit := -1, -1
	for f := 0; f < b.data.features(); f++ {
		nb := b.data.nBins(f)
		if nb < 2 {
			continue
		}
		hs := make([]float64, nb)
		cnt := make([]int, nb)
		codes := b.data.bins[f]
		for _, i := range idx {
			c := codes[i]
			hs[c] += b.r[i]
			cnt[c]++
		}
		var sl float64
		nl := 0
		for s := 0; s < nb-1; s++ {
			sl += hs[s]
			nl += cnt[s]
			nr := len(idx) - nl
			if nl < b.params.minLeaf || cnt[s] == 0 {
				continue
			}
			if nr < b.params.minLeaf {
				break
			}
			sr := sum - sl
			gain := sl*sl/float64(nl) + sr*sr/float64(nr) - base
			if gain > bestGain {
				bestGain, bestFeat, bestSplit = gain, f, s
			}
		}
	}
	return bestFeat, bestSplit, bestFeat >= 0
}
