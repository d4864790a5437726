package sorting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/comment-tree/internal/models"
)

func comment(id string, ups, downs int64, created time.Time) *models.Comment {
	return &models.Comment{ID: id, Ups: ups, Downs: downs, CreatedAt: created}
}

// sorted возвращает id комментариев в порядке режима m.
func sorted(items []*models.Comment, m Mode) []string {
	byID := make(map[string]*models.Comment, len(items))
	out := make([]string, 0, len(items))
	for _, c := range items {
		byID[c.ID] = c
		out = append(out, c.ID)
	}

	SortIDs(out, func(id string) (*models.Comment, bool) {
		c, ok := byID[id]
		return c, ok
	}, m)

	return out
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, m := range Modes() {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		require.Equal(t, m, got)
	}

	got, err := ParseMode("  TOP ")
	require.NoError(t, err)
	require.Equal(t, Top, got)

	got, err = ParseMode("")
	require.NoError(t, err)
	require.Equal(t, Hot, got)

	_, err = ParseMode("best")
	require.ErrorIs(t, err, ErrUnknownMode)

	require.False(t, Mode(0).Valid())
	require.Equal(t, "mode(42)", Mode(42).String())
}

func TestSort_Top_TieBrokenByID(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1_700_000_000, 0)
	items := []*models.Comment{
		comment("c", 5, 0, ts),
		comment("a", 10, 0, ts),
		comment("b", 5, 0, ts),
		comment("d", 1, 3, ts),
	}

	require.Equal(t, []string{"a", "b", "c", "d"}, sorted(items, Top))
}

func TestSort_NewAndOld(t *testing.T) {
	t.Parallel()

	base := time.Unix(1_700_000_000, 0)
	items := []*models.Comment{
		comment("mid", 0, 0, base.Add(time.Minute)),
		comment("first", 0, 0, base),
		comment("last", 0, 0, base.Add(time.Hour)),
		comment("last2", 0, 0, base.Add(time.Hour)),
	}

	require.Equal(t, []string{"last", "last2", "mid", "first"}, sorted(items, New))
	require.Equal(t, []string{"first", "mid", "last", "last2"}, sorted(items, Old))
}

func TestSort_Hot_FresherWinsOnEqualScore(t *testing.T) {
	t.Parallel()

	base := time.Unix(1_700_000_000, 0)
	old := comment("old", 10, 0, base)
	fresh := comment("fresh", 10, 0, base.Add(24*time.Hour))
	popular := comment("popular", 1000, 0, base)

	items := []*models.Comment{old, popular, fresh}

	// Сутки свежести (~1.92 порядка) против двух порядков рейтинга.
	require.Equal(t, []string{"popular", "fresh", "old"}, sorted(items, Hot))
}

func TestSort_Controversial(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1_700_000_000, 0)
	items := []*models.Comment{
		comment("onesided", 100, 0, ts),
		comment("split", 50, 50, ts),
		comment("smallsplit", 3, 3, ts),
		comment("lean", 60, 40, ts),
	}

	require.Equal(t, []string{"split", "lean", "smallsplit", "onesided"}, sorted(items, Controversial))
}

func TestKeyOf_Pure(t *testing.T) {
	t.Parallel()

	c := comment("x", 7, 2, time.Unix(1_650_000_000, 0))
	for _, m := range Modes() {
		require.Equal(t, KeyOf(c, m), KeyOf(c, m), m.String())
		require.Equal(t, 0, Compare(KeyOf(c, m), KeyOf(c, m)))
	}
}

func TestSortIDs_UnknownGoLast(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1_700_000_000, 0)
	known := map[string]*models.Comment{
		"a": comment("a", 1, 0, ts),
		"b": comment("b", 9, 0, ts),
	}
	lookup := func(id string) (*models.Comment, bool) {
		c, ok := known[id]
		return c, ok
	}

	list := []string{"z", "a", "y", "b"}
	SortIDs(list, lookup, Top)
	require.Equal(t, []string{"b", "a", "y", "z"}, list)
}

func TestKeyFor_UnknownModeOrdersByID(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1_700_000_000, 0)
	items := []*models.Comment{
		comment("b", 100, 0, ts),
		comment("a", 0, 0, ts.Add(time.Hour)),
	}

	require.Equal(t, Key{ID: "a"}, KeyFor(Mode(99))(items[1]))
	require.Equal(t, []string{"a", "b"}, sorted(items, Mode(99)))
}

func TestKeyFor_MatchesKeyOf(t *testing.T) {
	t.Parallel()

	c := comment("x", 40, 12, time.Unix(1_690_000_000, 0))
	for _, m := range Modes() {
		require.Equal(t, KeyOf(c, m), KeyFor(m)(c), m.String())
	}
}
