package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/clusterlens/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		min  int
	}{
		{"empty", "", 0},
		{"simple", "hello world", 2},
		{"long", strings.Repeat("a", 4000), 900},
	}
	for _, c := range cases {
		assert.GreaterOrEqual(t, utils.CountTokens(c.in), c.min, c.name)
	}
}

func TestTruncateToTokenLimit(t *testing.T) {
	text := strings.Repeat("abcd ", 1000)
	trunc := utils.TruncateToTokenLimit(text, 300)
	assert.LessOrEqual(t, utils.CountTokens(trunc), 300)
	assert.NotEmpty(t, trunc)
	assert.Empty(t, utils.TruncateToTokenLimit(text, 0))
}

func TestTruncateLines(t *testing.T) {
	text := "ab,cd\n1,2\n3,4\n"
	out, cut := utils.TruncateLines(text, 2)
	assert.True(t, cut)
	assert.Equal(t, "ab,cd\n", out)

	out, cut = utils.TruncateLines(text, 100)
	assert.False(t, cut)
	assert.Equal(t, text, out)

	// the header alone does not fit
	out, cut = utils.TruncateLines("name,score,region\n1,2,3\n", 1)
	assert.True(t, cut)
	assert.Empty(t, out)
}

func TestTokenBreakdown(t *testing.T) {
	got := utils.TokenBreakdown(map[string]string{"question": "abcdefgh", "data": ""})
	assert.Equal(t, map[string]int{"question": 2, "data": 0}, got)
}

func TestSafeWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	require.NoError(t, utils.EnsureDir(dir))
	p := filepath.Join(dir, "out.json")
	b, err := utils.PrettyJSON(map[string]int{"n": 1})
	require.NoError(t, err)
	require.NoError(t, utils.SafeWriteFile(p, b))

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"n\": 1\n}", string(got))
	_, err = os.Stat(p + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
