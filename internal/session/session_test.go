package session

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/KaramelBytes/clusterlens/internal/cluster"
	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"github.com/KaramelBytes/clusterlens/internal/preprocess"
	"github.com/KaramelBytes/clusterlens/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groups = `a,b,noise
1,1,5
1.2,1.1,5
0.8,0.9,5
10,10,5
10.2,10.1,5
9.8,9.9,5
`

func load(t *testing.T, csv string) *dataset.Dataset {
	t.Helper()
	d, err := dataset.ReadCSV(strings.NewReader(csv), "s.csv", dataset.DefaultOptions())
	require.NoError(t, err)
	return d
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestClusterProfileExport(t *testing.T) {
	s := New(DefaultOptions(), quiet())
	s.Load(load(t, groups))
	require.NoError(t, s.Select([]string{"a", "b", "noise"}))
	assert.True(t, s.Stale())

	r, cached, err := s.Cluster()
	require.NoError(t, err)
	assert.False(t, cached)
	assert.False(t, s.Stale())
	assert.Equal(t, 2, r.K)
	assert.Equal(t, []int{3, 3}, r.Sizes)
	assert.Equal(t, []string{"noise"}, r.Dropped)
	assert.NotEmpty(t, r.RunID)

	p, err := s.Profile()
	require.NoError(t, err)
	assert.Equal(t, "noise", p.Ranking[2].Feature)

	tables, m, err := s.Export()
	require.NoError(t, err)
	assert.Len(t, tables, 2)
	assert.Equal(t, r.RunID, m.RunID)

	png, err := s.Chart("a", 1)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
	_, err = s.Chart("a", 2)
	var re *RangeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "cluster 3 out of range 1..2", err.Error())
}

func TestCacheHitOnIdenticalRun(t *testing.T) {
	s := New(DefaultOptions(), quiet())
	s.Load(load(t, groups))
	require.NoError(t, s.Select([]string{"a", "b"}))
	first, _, err := s.Cluster()
	require.NoError(t, err)

	// same content under a different name and object
	s.Load(load(t, groups))
	require.NoError(t, s.Select([]string{"a", "b"}))
	second, cached, err := s.Cluster()
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.RunID, second.RunID)

	require.NoError(t, s.Select([]string{"b", "a"}))
	third, cached, err := s.Cluster()
	require.NoError(t, err)
	assert.False(t, cached)
	assert.NotEqual(t, first.RunID, third.RunID)
}

func TestStaleAfterReselect(t *testing.T) {
	s := New(DefaultOptions(), quiet())
	s.Load(load(t, groups))
	require.NoError(t, s.Select([]string{"a", "b"}))
	_, _, err := s.Cluster()
	require.NoError(t, err)

	require.NoError(t, s.Select([]string{"a"}))
	assert.True(t, s.Stale())

	var nce *profile.NoClusterColumnError
	_, err = s.Profile()
	require.True(t, errors.As(err, &nce))
	assert.Equal(t, []string{"a", "b"}, nce.Assigned)
	_, _, err = s.Export()
	assert.True(t, errors.As(err, &nce))
	_, err = s.Labeled()
	assert.True(t, errors.As(err, &nce))

	// switching back to the clustered selection clears the flag
	require.NoError(t, s.Select([]string{"a", "b"}))
	assert.False(t, s.Stale())
	_, err = s.Profile()
	assert.NoError(t, err)
}

func TestLoadClearsResult(t *testing.T) {
	s := New(DefaultOptions(), quiet())
	s.Load(load(t, groups))
	require.NoError(t, s.Select([]string{"a"}))
	_, _, err := s.Cluster()
	require.NoError(t, err)

	s.Load(load(t, groups))
	_, err = s.Result()
	var nce *profile.NoClusterColumnError
	assert.True(t, errors.As(err, &nce))
	assert.Nil(t, nce.Assigned)

	// same column names, but the selection belongs to the previous upload
	assert.Empty(t, s.Selection())
	assert.True(t, s.Stale())
	_, _, err = s.Cluster()
	var empty *preprocess.EmptySelectionError
	assert.True(t, errors.As(err, &empty))
}

func TestSessionErrors(t *testing.T) {
	s := New(DefaultOptions(), quiet())
	_, _, err := s.Cluster()
	assert.ErrorIs(t, err, ErrNoDataset)
	assert.ErrorIs(t, s.Select([]string{"a"}), ErrNoDataset)

	s.Load(load(t, groups))
	var empty *preprocess.EmptySelectionError
	assert.True(t, errors.As(s.Select(nil), &empty))
	var unknown *preprocess.UnknownFeatureError
	assert.True(t, errors.As(s.Select([]string{"zzz"}), &unknown))

	require.NoError(t, s.Select([]string{"noise"}))
	_, _, err = s.Cluster()
	var nv *preprocess.NoVarianceError
	assert.True(t, errors.As(err, &nv))
}

func TestDegenerateAndFallback(t *testing.T) {
	d := load(t, "x\n-1\n1\n")

	s := New(DefaultOptions(), quiet())
	s.Load(d)
	require.NoError(t, s.Select([]string{"x"}))
	_, _, err := s.Cluster()
	var dde *cluster.DegenerateDataError
	require.True(t, errors.As(err, &dde))
	assert.True(t, s.Stale())

	opt := DefaultOptions()
	opt.FallbackK = 5
	s = New(opt, quiet())
	s.Load(d)
	require.NoError(t, s.Select([]string{"x"}))
	r, _, err := s.Cluster()
	require.NoError(t, err)
	assert.True(t, r.Fallback)
	assert.Equal(t, 2, r.K)
}

func TestClusterKOverride(t *testing.T) {
	s := New(DefaultOptions(), quiet())
	s.Load(load(t, groups))
	require.NoError(t, s.Select([]string{"a", "b"}))
	r, _, err := s.ClusterK(3)
	require.NoError(t, err)
	assert.Equal(t, 3, r.K)
	assert.Nil(t, r.Elbow)

	_, _, err = s.ClusterK(7)
	var re *RangeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "k", re.What)
	assert.Equal(t, 6, re.Max)
}

func TestMemoEvictsOldest(t *testing.T) {
	m := newMemo(2)
	m.put("a", &Result{RunID: "a"})
	m.put("b", &Result{RunID: "b"})
	m.put("c", &Result{RunID: "c"})
	_, ok := m.get("a")
	assert.False(t, ok)
	r, ok := m.get("c")
	require.True(t, ok)
	assert.Equal(t, "c", r.RunID)
	assert.Len(t, m.items, 2)
}

func TestLoadRejectsInfiniteValues(t *testing.T) {
	_, err := dataset.ReadCSV(strings.NewReader("a,b\n1,2\ninf,3\n3,4\n5,1\n"), "s.csv", dataset.DefaultOptions())
	var ufe *dataset.UploadFormatError
	require.True(t, errors.As(err, &ufe), "got %v", err)

	// a dataset mutated after loading still fails before clustering, with or without a fallback
	for _, fallback := range []int{0, 2} {
		opt := DefaultOptions()
		opt.FallbackK = fallback
		s := New(opt, quiet())
		d := load(t, "a,b\n1,2\n2,3\n3,4\n5,1\n")
		a, _ := d.Column("a")
		a.Values[1] = math.Inf(1)
		s.Load(d)
		require.NoError(t, s.Select([]string{"a", "b"}))
		_, _, err := s.Cluster()
		var nfe *preprocess.NonFiniteError
		require.True(t, errors.As(err, &nfe), "fallback %d: got %v", fallback, err)
		assert.Equal(t, "a", nfe.Feature)
		assert.Equal(t, 1, nfe.Row)
	}
}
