package ml

import "fmt"

// Tree is a binary decision tree stored as parallel node arrays. Node 0 is
// the root. A node with Left == -1 is a leaf and carries Value; an internal
// node sends a row left when row[Feature] <= Threshold.
type Tree struct {
	Feature   []int       `json:"feature"`
	Threshold []float64   `json:"threshold"`
	Left      []int       `json:"left"`
	Right     []int       `json:"right"`
	Value     [][]float64 `json:"value"`
}

const leafMarker = -1

func (t *Tree) NodeCount() int { return len(t.Feature) }

func (t *Tree) IsLeaf(node int) bool { return t.Left[node] == leafMarker }

func (t *Tree) addNode() int {
	t.Feature = append(t.Feature, leafMarker)
	t.Threshold = append(t.Threshold, 0)
	t.Left = append(t.Left, leafMarker)
	t.Right = append(t.Right, leafMarker)
	t.Value = append(t.Value, nil)
	return len(t.Feature) - 1
}

// Leaf returns the index of the leaf row falls into.
func (t *Tree) Leaf(row []float64) int {
	node := 0
	for !t.IsLeaf(node) {
		if row[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return node
}

// Predict returns the leaf value for row. The slice is shared; do not modify.
func (t *Tree) Predict(row []float64) []float64 {
	return t.Value[t.Leaf(row)]
}

// Validate checks structural consistency against the number of input
// features and the expected leaf value width.
func (t *Tree) Validate(features, valueWidth int) error {
	n := len(t.Feature)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	if len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		if t.Left[i] == leafMarker {
			if t.Right[i] != leafMarker {
				return fmt.Errorf("node %d: half leaf", i)
			}
			if len(t.Value[i]) != valueWidth {
				return fmt.Errorf("node %d: leaf value has %d entries, want %d", i, len(t.Value[i]), valueWidth)
			}
			continue
		}
		if t.Feature[i] < 0 || t.Feature[i] >= features {
			return fmt.Errorf("node %d: feature index %d out of range", i, t.Feature[i])
		}
		// children are always appended after their parent, which also rules out cycles
		if t.Left[i] <= i || t.Left[i] >= n || t.Right[i] <= i || t.Right[i] >= n {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

type treeParams struct {
	maxDepth int
	minSplit int
	minLeaf  int
}

// partition reorders idx so rows with bin code <= split come first and
// returns the size of that prefix.
func partition(idx []int, codes []uint8, split int) int {
	i, j := 0, len(idx)-1
	for i <= j {
		if int(codes[idx[i]]) <= split {
			i++
			continue
		}
		idx[i], idx[j] = idx[j], idx[i]
		j--
	}
	return i
}
