// Package cluster partitions standardized rows with K-means and picks the
// cluster count from the elbow of the WCSS curve.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Options control a K-means fit.
type Options struct {
	Seed      int64
	NInit     int
	MaxIter   int
	Tolerance float64
}

// DefaultOptions returns seed 42, 10 restarts, 300 iterations and 1e-4 tolerance.
func DefaultOptions() Options {
	return Options{Seed: 42, NInit: 10, MaxIter: 300, Tolerance: 1e-4}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.NInit <= 0 {
		o.NInit = d.NInit
	}
	if o.MaxIter <= 0 {
		o.MaxIter = d.MaxIter
	}
	if o.Tolerance < 0 {
		o.Tolerance = d.Tolerance
	}
	return o
}

// Model is a fitted K-means partition.
type Model struct {
	K          int
	Centers    *mat.Dense
	Labels     []int
	Inertia    float64
	Iterations int
}

// Fit runs K-means with k-means++ seeding and keeps the restart with the
// lowest inertia. Labels are renumbered in order of first appearance.
func Fit(x mat.Matrix, k int, opt Options) (*Model, error) {
	if x == nil {
		return nil, errors.New("kmeans: nil matrix")
	}
	n, p := x.Dims()
	if n == 0 || p == 0 {
		return nil, errors.New("kmeans: empty matrix")
	}
	if k < 1 || k > n {
		return nil, fmt.Errorf("kmeans: k=%d outside [1,%d]", k, n)
	}
	opt = opt.withDefaults()
	data := mat.DenseCopyOf(x)
	tol := scaledTolerance(data, opt.Tolerance)
	rng := rand.New(rand.NewSource(opt.Seed))

	var best *Model
	for run := 0; run < opt.NInit; run++ {
		m := lloyd(data, seedCenters(data, k, rng), opt.MaxIter, tol)
		if best == nil || m.Inertia < best.Inertia {
			best = m
		}
	}
	best.canonicalize()
	return best, nil
}

// Predict assigns each row of x to its nearest center.
func (m *Model) Predict(x mat.Matrix) ([]int, error) {
	n, p := x.Dims()
	if _, cp := m.Centers.Dims(); cp != p {
		return nil, fmt.Errorf("kmeans: model has %d features, input has %d", cp, p)
	}
	data := mat.DenseCopyOf(x)
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i], _ = nearest(data.RawRowView(i), m.Centers)
	}
	return out, nil
}

// scaledTolerance expresses tol relative to the mean column variance.
func scaledTolerance(x *mat.Dense, tol float64) float64 {
	n, p := x.Dims()
	if n < 2 {
		return 0
	}
	col := make([]float64, n)
	var sum float64
	for j := 0; j < p; j++ {
		mat.Col(col, j, x)
		_, v := stat.PopMeanVariance(col, nil)
		sum += v
	}
	return tol * sum / float64(p)
}

// seedCenters picks k starting centers with k-means++.
func seedCenters(x *mat.Dense, k int, rng *rand.Rand) *mat.Dense {
	n, p := x.Dims()
	centers := mat.NewDense(k, p, nil)
	centers.SetRow(0, x.RawRowView(rng.Intn(n)))

	d2 := make([]float64, n)
	for i := range d2 {
		d2[i] = sqDist(x.RawRowView(i), centers.RawRowView(0))
	}
	for c := 1; c < k; c++ {
		total := floats.Sum(d2)
		idx := rng.Intn(n)
		if total > 0 {
			r := rng.Float64() * total
			acc := 0.0
			for i, d := range d2 {
				acc += d
				if acc >= r && d > 0 {
					idx = i
					break
				}
			}
		}
		centers.SetRow(c, x.RawRowView(idx))
		for i := range d2 {
			if d := sqDist(x.RawRowView(i), centers.RawRowView(c)); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centers
}

func lloyd(x *mat.Dense, centers *mat.Dense, maxIter int, tol float64) *Model {
	n, p := x.Dims()
	k, _ := centers.Dims()
	labels := make([]int, n)
	dist := make([]float64, n)
	next := mat.NewDense(k, p, nil)
	counts := make([]int, k)

	iter := 0
	for iter < maxIter {
		iter++
		assign(x, centers, labels, dist)

		next.Zero()
		for c := range counts {
			counts[c] = 0
		}
		for i := 0; i < n; i++ {
			floats.Add(next.RawRowView(labels[i]), x.RawRowView(i))
			counts[labels[i]]++
		}
		taken := map[int]bool{}
		for c := 0; c < k; c++ {
			if counts[c] > 0 {
				floats.Scale(1/float64(counts[c]), next.RawRowView(c))
				continue
			}
			// empty cluster: move it onto the point farthest from its center
			far := farthest(dist, taken)
			taken[far] = true
			next.SetRow(c, x.RawRowView(far))
			dist[far] = 0
		}

		shift := 0.0
		for c := 0; c < k; c++ {
			shift += sqDist(centers.RawRowView(c), next.RawRowView(c))
		}
		centers.Copy(next)
		if shift <= tol {
			break
		}
	}
	inertia := assign(x, centers, labels, dist)
	return &Model{K: k, Centers: centers, Labels: labels, Inertia: inertia, Iterations: iter}
}

// assign labels every row with its nearest center and returns the inertia.
func assign(x *mat.Dense, centers *mat.Dense, labels []int, dist []float64) float64 {
	n, _ := x.Dims()
	inertia := 0.0
	for i := 0; i < n; i++ {
		labels[i], dist[i] = nearest(x.RawRowView(i), centers)
		inertia += dist[i]
	}
	return inertia
}

func nearest(row []float64, centers *mat.Dense) (int, float64) {
	k, _ := centers.Dims()
	best, bestD := 0, math.Inf(1)
	for c := 0; c < k; c++ {
		if d := sqDist(row, centers.RawRowView(c)); d < bestD {
			best, bestD = c, d
		}
	}
	return best, bestD
}

func farthest(dist []float64, taken map[int]bool) int {
	idx, farD := 0, -1.0
	for i, d := range dist {
		if !taken[i] && d > farD {
			idx, farD = i, d
		}
	}
	return idx
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// canonicalize renumbers clusters so that cluster 0 holds the first row,
// cluster 1 the first row outside cluster 0, and so on.
func (m *Model) canonicalize() {
	remap := make(map[int]int, m.K)
	order := make([]int, 0, m.K)
	for _, l := range m.Labels {
		if _, ok := remap[l]; !ok {
			remap[l] = len(order)
			order = append(order, l)
		}
	}
	// centers that own no rows keep their relative order at the end
	for c := 0; c < m.K; c++ {
		if _, ok := remap[c]; !ok {
			remap[c] = len(order)
			order = append(order, c)
		}
	}
	_, p := m.Centers.Dims()
	centers := mat.NewDense(m.K, p, nil)
	for newID, old := range order {
		centers.SetRow(newID, m.Centers.RawRowView(old))
	}
	m.Centers = centers
	for i, l := range m.Labels {
		m.Labels[i] = remap[l]
	}
}
