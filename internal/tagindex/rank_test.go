package tagindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, data map[string][]string) *Index {
	t.Helper()
	x := New()
	for id, tags := range data {
		_, err := x.RegisterEntity(id)
		require.NoError(t, err)
		for _, tag := range tags {
			_, err := x.AttachTag(id, tag)
			require.NoError(t, err)
		}
	}
	return x
}

func TestRankByTags(t *testing.T) {
	x := seed(t, map[string][]string{
		"A": {"sports", "music"},
		"B": {"sports"},
		"C": {"music", "art"},
		"D": {"art"},
	})

	got := x.RankByTags([]string{"sports", "music"})
	assert.Equal(t, []ScoredEntity{
		{EntityID: "A", Overlap: 2},
		{EntityID: "B", Overlap: 1},
		{EntityID: "C", Overlap: 1},
	}, got)
}

func TestRankByTags_TieBreakByID(t *testing.T) {
	x := seed(t, map[string][]string{
		"zeta":  {"go"},
		"alpha": {"go"},
		"mid":   {"go", "rust"},
		"beta":  {"go"},
	})

	got := x.RankByTags([]string{"go", "rust"})
	require.Len(t, got, 4)
	assert.Equal(t, ScoredEntity{EntityID: "mid", Overlap: 2}, got[0])
	ids := []string{got[1].EntityID, got[2].EntityID, got[3].EntityID}
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, ids)

	for i := 0; i < 10; i++ {
		assert.Equal(t, got, x.RankByTags([]string{"rust", "go"}), "ranking must be deterministic")
	}
}

func TestRankByTags_EdgeCases(t *testing.T) {
	x := seed(t, map[string][]string{
		"A": {"sports"},
		"B": {},
	})

	tests := []struct {
		name  string
		query []string
		want  []ScoredEntity
	}{
		{"empty query", []string{}, []ScoredEntity{}},
		{"nil query", nil, []ScoredEntity{}},
		{"unknown tag", []string{"nonexistent"}, []ScoredEntity{}},
		{"empty tag ignored", []string{""}, []ScoredEntity{}},
		{"duplicates count once", []string{"sports", "sports"}, []ScoredEntity{{EntityID: "A", Overlap: 1}}},
		{"mixed known and unknown", []string{"sports", "nope"}, []ScoredEntity{{EntityID: "A", Overlap: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := x.RankByTags(tt.query)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRankByTags_AfterDetach(t *testing.T) {
	x := seed(t, map[string][]string{
		"A": {"sports", "music"},
		"B": {"sports"},
	})
	_, err := x.DetachTag("A", "music")
	require.NoError(t, err)

	got := x.RankByTags([]string{"sports", "music"})
	assert.Equal(t, []ScoredEntity{
		{EntityID: "A", Overlap: 1},
		{EntityID: "B", Overlap: 1},
	}, got)
}

func TestRankByTags_ReadOnly(t *testing.T) {
	x := seed(t, map[string][]string{"A": {"x"}})
	rev := x.Revision()
	_ = x.RankByTags([]string{"x", "y"})
	assert.Equal(t, rev, x.Revision())
	assert.Equal(t, []string{"x"}, x.AllTags())
}

func TestMatchedTags(t *testing.T) {
	assert.Equal(t, []string{"music", "sports"},
		MatchedTags([]string{"sports", "art", "music"}, []string{"music", "sports", "chess"}))
	assert.Empty(t, MatchedTags([]string{"art"}, []string{"music"}))
	assert.Empty(t, MatchedTags(nil, nil))
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NormalizeQuery([]string{"b", "", "a", "b"}))
	assert.Empty(t, NormalizeQuery(nil))
}
