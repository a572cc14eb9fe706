package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestConfig controls the bagged tree classifier.
type ForestConfig struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Balanced        bool
	Workers         int // 0 means runtime.NumCPU()
	Seed            uint64
}

// Forest averages the class distributions of bootstrap-trained gini trees.
type Forest struct {
	Trees    []Tree
	NClasses int
}

func fitForest(ctx context.Context, data *binnedMatrix, y []int, k int, cfg ForestConfig) (*Forest, error) {
	if cfg.Trees <= 0 {
		return nil, fmt.Errorf("forest needs at least one tree")
	}
	classWeight := make([]float64, k)
	for c := range classWeight {
		classWeight[c] = 1
	}
	if cfg.Balanced {
		counts := make([]int, k)
		for _, c := range y {
			counts[c]++
		}
		for c, n := range counts {
			if n > 0 {
				classWeight[c] = float64(len(y)) / float64(k*n)
			}
		}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	maxFeatures := int(math.Sqrt(float64(data.features())))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	f := &Forest{Trees: make([]Tree, cfg.Trees), NClasses: k}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < cfg.Trees; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// one stream per tree keeps results independent of scheduling
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
			b := &classTreeBuilder{
				data:        data,
				y:           y,
				k:           k,
				params:      treeParams{maxDepth: cfg.MaxDepth, minSplit: cfg.MinSamplesSplit, minLeaf: cfg.MinSamplesLeaf},
				maxFeatures: maxFeatures,
				rng:         rng,
			}
			idx, w := bootstrap(rng, len(y), y, classWeight)
			b.w = w
			b.tree = &Tree{}
			b.build(idx, 0)
			f.Trees[i] = *b.tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

// bootstrap draws n rows with replacement and returns the distinct drawn
// rows with weight = draws × class weight.
func bootstrap(rng *rand.Rand, n int, y []int, classWeight []float64) ([]int, []float64) {
	counts := make([]int, n)
	for i := 0; i < n; i++ {
		counts[rng.IntN(n)]++
	}
	w := make([]float64, n)
	idx := make([]int, 0, n)
	for i, c := range counts {
		if c == 0 {
			continue
		}
		w[i] = float64(c) * classWeight[y[i]]
		idx = append(idx, i)
	}
	return idx, w
}

// PredictProba averages the leaf class distributions of every tree.
func (f *Forest) PredictProba(row []float64) []float64 {
	out := make([]float64, f.NClasses)
	for i := range f.Trees {
		for c, p := range f.Trees[i].Predict(row) {
			out[c] += p
		}
	}
	for c := range out {
		out[c] /= float64(len(f.Trees))
	}
	return out
}

type classTreeBuilder struct {
	data        *binnedMatrix
	y           []int
	w           []float64
	k           int
	params      treeParams
	maxFeatures int
	rng         *rand.Rand
	tree        *Tree
}

func (b *classTreeBuilder) build(idx []int, depth int) int {
	node := b.tree.addNode()
	dist := make([]float64, b.k)
	var total float64
	for _, i := range idx {
		dist[b.y[i]] += b.w[i]
		total += b.w[i]
	}
	parentImp := gini(dist, total)

	if depth >= b.params.maxDepth || len(idx) < b.params.minSplit || parentImp <= 1e-12 || total == 0 {
		b.tree.Value[node] = normalize(dist, total)
		return node
	}

	feat, split, ok := b.bestSplit(idx, dist, total, parentImp)
	if !ok {
		b.tree.Value[node] = normalize(dist, total)
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

func (b *classTreeBuilder) bestSplit(idx []int, dist []float64, total, parentImp float64) (int, int, bool) {
	nf := b.data.features()
	perm := b.rng.Perm(nf)[:b.maxFeatures]

	bestGain := 1e-12
	bestFeat, bestSplit := -1, -1
	left := make([]float64, b.k)
	right := make([]float64, b.k)
	for _, f := range perm {
		nb := b.data.nBins(f)
		if nb < 2 {
			continue
		}
		hist := make([]float64, nb*b.k)
		cnt := make([]int, nb)
		codes := b.data.bins[f]
		for _, i := range idx {
			c := int(codes[i])
			hist[c*b.k+b.y[i]] += b.w[i]
			cnt[c]++
		}
		for c := range left {
			left[c] = 0
		}
		var wl float64
		nl := 0
		for s := 0; s < nb-1; s++ {
			for c := 0; c < b.k; c++ {
				left[c] += hist[s*b.k+c]
				wl += hist[s*b.k+c]
			}
			nl += cnt[s]
			nr := len(idx) - nl
			if nl < b.params.minLeaf {
				continue
			}
			if nr < b.params.minLeaf {
				break
			}
			if cnt[s] == 0 {
				continue
			}
			wr := total - wl
			if wl <= 0 || wr <= 0 {
				continue
			}
			for c := range right {
				right[c] = dist[c] - left[c]
			}
			gain := total*parentImp - wl*gini(left, wl) - wr*gini(right, wr)
			if gain > bestGain {
				bestGain, bestFeat, bestSplit = gain, f, s
			}
		}
	}
	return bestFeat, bestSplit, bestFeat >= 0
}

func gini(dist []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	g := 1.0
	for _, v := range dist {
		p := v / total
		g -= p * p
	}
	return g
}

func normalize(dist []float64, total float64) []float64 {
	out := make([]float64, len(dist))
	if total <= 0 {
		for c := range out {
			out[c] = 1 / float64(len(out))
		}
		return out
	}
	for c, v := range dist {
		out[c] = v / total
	}
	return out
}
