// Package session holds the state of one exploration session: the loaded
// dataset, the current feature selection and the last clustering result.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/KaramelBytes/clusterlens/internal/chart"
	"github.com/KaramelBytes/clusterlens/internal/cluster"
	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"github.com/KaramelBytes/clusterlens/internal/export"
	"github.com/KaramelBytes/clusterlens/internal/preprocess"
	"github.com/KaramelBytes/clusterlens/internal/profile"
	"github.com/google/uuid"
)

// ErrNoDataset is returned by operations that need a loaded dataset.
var ErrNoDataset = errors.New("no dataset loaded")

// RangeError reports a cluster count or cluster number outside what the
// current data allows.
type RangeError struct {
	What  string
	Value int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d out of range 1..%d", e.What, e.Value, e.Max)
}

// Options configure the pipeline run by Cluster.
type Options struct {
	Select cluster.SelectOptions
	// K skips elbow selection when positive.
	K int
	// FallbackK is used when the WCSS curve has no elbow. Zero surfaces the error.
	FallbackK int
	CacheSize int
	Charts    chart.Options
}

// DefaultOptions returns the default pipeline options and a 16 entry cache.
func DefaultOptions() Options {
	return Options{Select: cluster.DefaultSelectOptions(), CacheSize: 16, Charts: chart.DefaultOptions()}
}

// Result is one clustering run.
type Result struct {
	RunID      string             `json:"run_id" yaml:"run_id"`
	Selection  []string           `json:"selection" yaml:"selection"`
	K          int                `json:"k" yaml:"k"`
	Elbow      *cluster.Selection `json:"elbow,omitempty" yaml:"elbow,omitempty"`
	Fallback   bool               `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Sizes      []int              `json:"sizes" yaml:"sizes"`
	Inertia    float64            `json:"inertia" yaml:"inertia"`
	Iterations int                `json:"iterations" yaml:"iterations"`
	Dropped    []string           `json:"dropped,omitempty" yaml:"dropped,omitempty"`

	Prep    *preprocess.Result `json:"-" yaml:"-"`
	Model   *cluster.Model     `json:"-" yaml:"-"`
	Labeled *dataset.Labeled   `json:"-" yaml:"-"`
}

// Session is safe for concurrent use; every method takes the session lock.
type Session struct {
	ID string

	opt   Options
	log   *slog.Logger
	mu    sync.Mutex
	data  *dataset.Dataset
	sel   []string
	res   *Result
	stale bool
	cache *memo
}

// New returns an empty session. A nil logger uses slog.Default.
func New(opt Options, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	if opt.CacheSize <= 0 {
		opt.CacheSize = DefaultOptions().CacheSize
	}
	id := uuid.NewString()
	return &Session{
		ID:    id,
		opt:   opt,
		log:   log.With("session", id),
		stale: true,
		cache: newMemo(opt.CacheSize),
	}
}

// Load replaces the dataset and discards the previous selection and result.
func (s *Session) Load(ds *dataset.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = ds
	s.sel = nil
	s.res = nil
	s.stale = true
	if ds != nil {
		s.log.Info("dataset loaded", "name", ds.Name, "rows", ds.Len(), "columns", len(ds.Columns), "duplicates", ds.Duplicates)
	}
}

// Dataset returns the loaded dataset, or nil.
func (s *Session) Dataset() *dataset.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Select sets the feature selection and recomputes the stale flag.
func (s *Session) Select(features []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return ErrNoDataset
	}
	if len(features) == 0 {
		return &preprocess.EmptySelectionError{}
	}
	for _, f := range features {
		if _, ok := s.data.Column(f); !ok {
			return &preprocess.UnknownFeatureError{Feature: f}
		}
	}
	s.sel = append([]string(nil), features...)
	s.stale = s.res == nil || !equal(s.res.Selection, s.sel)
	s.log.Debug("features selected", "features", s.sel, "stale", s.stale)
	return nil
}

// Selection returns the current feature selection.
func (s *Session) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sel...)
}

// Stale reports whether the current selection lacks a matching result.
func (s *Session) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Cluster runs preprocessing, cluster-count selection and the final fit for
// the current selection. The second result reports a cache hit.
func (s *Session) Cluster() (*Result, bool, error) {
	return s.ClusterK(0)
}

// ClusterK is Cluster with a per-call k override; zero keeps the configured
// behaviour.
func (s *Session) ClusterK(k int) (*Result, bool, error) {
	if k <= 0 {
		k = s.opt.K
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, false, ErrNoDataset
	}
	if len(s.sel) == 0 {
		return nil, false, &preprocess.EmptySelectionError{}
	}
	key := s.key(k)
	if r, ok := s.cache.get(key); ok {
		s.res, s.stale = r, false
		s.log.Info("clustering served from cache", "run_id", r.RunID, "k", r.K)
		return r, true, nil
	}
	r, err := s.run(k)
	if err != nil {
		return nil, false, err
	}
	s.cache.put(key, r)
	s.res, s.stale = r, false
	s.log.Info("clustering complete", "run_id", r.RunID, "k", r.K, "inertia", r.Inertia, "sizes", r.Sizes)
	return r, false, nil
}

func (s *Session) run(k int) (*Result, error) {
	prep, err := preprocess.Run(s.data, s.sel)
	if err != nil {
		return nil, err
	}
	if len(prep.Dropped) > 0 {
		s.log.Debug("constant features dropped", "dropped", prep.Dropped)
	}
	res := &Result{RunID: uuid.NewString(), Selection: prep.Selection, Dropped: prep.Dropped, Prep: prep}

	if k > s.data.Len() {
		return nil, &RangeError{What: "k", Value: k, Max: s.data.Len()}
	}
	if k <= 0 {
		elbow, err := cluster.SelectK(prep.Matrix, s.opt.Select)
		var dde *cluster.DegenerateDataError
		switch {
		case errors.As(err, &dde) && s.opt.FallbackK > 0:
			k = s.opt.FallbackK
			if n := s.data.Len(); k > n {
				k = n
			}
			res.Fallback = true
			res.Elbow = &cluster.Selection{MaxK: len(dde.WCSS), WCSS: dde.WCSS}
			s.log.Warn("no elbow in WCSS curve, using fallback k", "k", k)
		case err != nil:
			return nil, err
		default:
			k = elbow.K
			res.Elbow = elbow
		}
	}
	m, err := cluster.Fit(prep.Matrix, k, s.opt.Select.KMeans)
	if err != nil {
		return nil, err
	}
	l, err := dataset.NewLabeled(s.data, m.Labels, m.K, prep.Selection)
	if err != nil {
		return nil, fmt.Errorf("label dataset: %w", err)
	}
	res.K, res.Model, res.Labeled = m.K, m, l
	res.Inertia, res.Iterations = m.Inertia, m.Iterations
	res.Sizes = make([]int, m.K)
	for _, lab := range m.Labels {
		res.Sizes[lab]++
	}
	return res, nil
}

// key identifies a run by dataset content and pipeline inputs.
func (s *Session) key(k int) string {
	h := sha256.New()
	h.Write([]byte(s.data.ContentHash()))
	h.Write([]byte{0x1e})
	h.Write([]byte(strings.Join(s.sel, "\x1f")))
	h.Write([]byte{0x1e})
	h.Write([]byte(strconv.Itoa(k) + "/" + strconv.Itoa(s.opt.FallbackK)))
	return hex.EncodeToString(h.Sum(nil))
}

// current returns the result for the current selection or a
// NoClusterColumnError.
func (s *Session) current() (*Result, error) {
	if s.data == nil {
		return nil, ErrNoDataset
	}
	if s.res == nil || s.stale {
		var assigned []string
		if s.res != nil {
			assigned = s.res.Selection
		}
		return nil, &profile.NoClusterColumnError{Current: s.sel, Assigned: assigned}
	}
	return s.res, nil
}

// Result returns the current clustering result.
func (s *Session) Result() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

// Labeled returns the labeled dataset of the current result.
func (s *Session) Labeled() (*dataset.Labeled, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.current()
	if err != nil {
		return nil, err
	}
	return r.Labeled, nil
}

// Profile profiles the current result using its encoding tables.
func (s *Session) Profile() (*profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.current()
	if err != nil {
		return nil, err
	}
	return profile.Build(r.Labeled, s.sel, r.Prep.Encodings)
}

// Export serializes every cluster of the current result.
func (s *Session) Export() (map[int][]byte, *export.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.current()
	if err != nil {
		return nil, nil, err
	}
	tables, err := export.Tables(r.Labeled)
	if err != nil {
		return nil, nil, err
	}
	return tables, export.NewManifest(r.RunID, r.Labeled), nil
}

// ExportDir writes the current result's cluster tables into dir.
func (s *Session) ExportDir(dir string) (*export.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.current()
	if err != nil {
		return nil, err
	}
	return export.WriteDir(dir, r.RunID, r.Labeled)
}

// Chart renders one feature of one cluster (0-based) of the current result.
func (s *Session) Chart(feature string, cluster int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.current()
	if err != nil {
		return nil, err
	}
	if cluster < 0 || cluster >= r.K {
		return nil, &RangeError{What: "cluster", Value: cluster + 1, Max: r.K}
	}
	return chart.PNG(r.Labeled, feature, cluster, s.opt.Charts)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
