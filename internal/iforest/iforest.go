// Package iforest implements an isolation forest whose fitted state is plain
// data, so it can be serialized and reloaded without loss.
//
// Scores follow the usual convention: ScoreSamples returns the negated
// anomaly score -2^(-E[h(x)]/c(psi)) and DecisionFunction shifts it by 0.5,
// so higher values mean more normal and negative values are outliers.
package iforest

import (
	"math"
	"math/rand"

	"github.com/cockroachdb/errors"
)

const eulerGamma = 0.5772156649015329

var (
	ErrEmptyInput = errors.New("iforest: empty input")
	ErrNotFitted  = errors.New("iforest: model is not fitted")
	ErrDimension  = errors.New("iforest: feature dimension mismatch")
)

// Node is one node of a flattened isolation tree. Leaves have Left == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Size      int     `json:"n"`
}

// Tree is an isolation tree stored as a node array rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is an isolation forest. The zero value is not usable; call New.
type Forest struct {
	NumTrees    int    `json:"num_trees"`
	MaxSamples  int    `json:"max_samples"`
	Seed        int64  `json:"seed"`
	SampleSize  int    `json:"sample_size"`
	NumFeatures int    `json:"num_features"`
	Trees       []Tree `json:"trees"`
}

// Option configures a Forest.
type Option func(*Forest)

// WithTrees sets the number of trees.
func WithTrees(n int) Option {
	return func(f *Forest) {
		if n > 0 {
			f.NumTrees = n
		}
	}
}

// WithSampleSize sets the per-tree subsample size upper bound.
func WithSampleSize(n int) Option {
	return func(f *Forest) {
		if n > 0 {
			f.MaxSamples = n
		}
	}
}

// WithSeed sets the random seed used by Fit.
func WithSeed(seed int64) Option {
	return func(f *Forest) { f.Seed = seed }
}

// New returns an unfitted forest with 100 trees, subsample size 256 and
// seed 42 unless overridden.
func New(opts ...Option) *Forest {
	f := &Forest{NumTrees: 100, MaxSamples: 256, Seed: 42}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fitted reports whether Fit has completed.
func (f *Forest) Fitted() bool {
	return len(f.Trees) > 0 && f.NumFeatures > 0
}

// Fit builds the forest from X. The same X and seed always produce the
// same trees.
func (f *Forest) Fit(X [][]float64) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	nf := len(X[0])
	if nf == 0 {
		return errors.Wrap(ErrDimension, "rows have no features")
	}
	for i, row := range X {
		if len(row) != nf {
			return errors.Wrapf(ErrDimension, "row %d has %d features, want %d", i, len(row), nf)
		}
	}

	psi := f.MaxSamples
	if psi > len(X) {
		psi = len(X)
	}
	limit := int(math.Ceil(math.Log2(float64(max(psi, 2)))))
	rng := rand.New(rand.NewSource(f.Seed))

	trees := make([]Tree, f.NumTrees)
	for t := range trees {
		sample := rng.Perm(len(X))[:psi]
		b := builder{X: X, rng: rng, limit: limit, nf: nf}
		b.grow(sample, 0)
		trees[t] = Tree{Nodes: b.nodes}
	}

	f.Trees = trees
	f.SampleSize = psi
	f.NumFeatures = nf
	return nil
}

// ScoreSamples returns -s(x) for every row, in [-1, 0).
func (f *Forest) ScoreSamples(X [][]float64) ([]float64, error) {
	if !f.Fitted() {
		return nil, ErrNotFitted
	}
	denom := averagePathLength(f.SampleSize)
	if denom == 0 {
		denom = 1
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != f.NumFeatures {
			return nil, errors.Wrapf(ErrDimension, "row %d has %d features, want %d", i, len(row), f.NumFeatures)
		}
		var sum float64
		for _, tree := range f.Trees {
			sum += tree.pathLength(row)
		}
		mean := sum / float64(len(f.Trees))
		out[i] = -math.Pow(2, -mean/denom)
	}
	return out, nil
}

// DecisionFunction returns ScoreSamples shifted by 0.5; higher is more
// normal.
func (f *Forest) DecisionFunction(X [][]float64) ([]float64, error) {
	scores, err := f.ScoreSamples(X)
	if err != nil {
		return nil, err
	}
	for i := range scores {
		scores[i] += 0.5
	}
	return scores, nil
}

func (t Tree) pathLength(x []float64) float64 {
	i, depth := 0, 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return float64(depth) + averagePathLength(n.Size)
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// averagePathLength is c(n), the mean path length of an unsuccessful
// search in a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

type builder struct {
	X     [][]float64
	rng   *rand.Rand
	limit int
	nf    int
	nodes []Node
}

func (b *builder) grow(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Left: -1, Right: -1, Size: len(idx)})
	if depth >= b.limit || len(idx) <= 1 {
		return id
	}

	lows := make([]float64, b.nf)
	highs := make([]float64, b.nf)
	candidates := make([]int, 0, b.nf)
	for feat := 0; feat < b.nf; feat++ {
		lo, hi := b.X[idx[0]][feat], b.X[idx[0]][feat]
		for _, row := range idx[1:] {
			v := b.X[row][feat]
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		lows[feat], highs[feat] = lo, hi
		if hi > lo {
			candidates = append(candidates, feat)
		}
	}
	if len(candidates) == 0 {
		return id
	}

	feat := candidates[b.rng.Intn(len(candidates))]
	lo, hi := lows[feat], highs[feat]
	split := lo + b.rng.Float64()*(hi-lo)
	if split >= hi {
		split = lo
	}

	var left, right []int
	for _, row := range idx {
		if b.X[row][feat] <= split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Feature = feat
	b.nodes[id].Threshold = split
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}
