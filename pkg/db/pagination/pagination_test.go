package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

type row struct{ id int }

func rows(n int) []*row {
	out := make([]*row, n)
	for i := range out {
		out[i] = &row{id: i + 1}
	}
	return out
}

func rowCursor(r *row) string { return strconv.Itoa(r.id) }

func TestCursorRoundTrip(t *testing.T) {
	encoded, err := EncodeCursor(Cursor{After: "42"})
	require.NoError(t, err)

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	require.Equal(t, "42", decoded.After)

	empty, err := DecodeCursor("")
	require.NoError(t, err)
	require.Empty(t, empty.After)

	_, err = DecodeCursor("%%%")
	require.Error(t, err)
}

func TestBuildCursorPage(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		data, info, err := BuildCursorPage([]*row{}, 5, rowCursor)
		require.NoError(t, err)
		require.Empty(t, data)
		require.False(t, info.HasMore)
	})

	t.Run("last page", func(t *testing.T) {
		data, info, err := BuildCursorPage(rows(3), 5, rowCursor)
		require.NoError(t, err)
		require.Len(t, data, 3)
		require.False(t, info.HasMore)
		require.Empty(t, info.NextCursor)
	})

	t.Run("more rows", func(t *testing.T) {
		data, info, err := BuildCursorPage(rows(6), 5, rowCursor)
		require.NoError(t, err)
		require.Len(t, data, 5)
		require.True(t, info.HasMore)

		next, err := DecodeCursor(info.NextCursor)
		require.NoError(t, err)
		require.Equal(t, "5", next.After)
	})

	t.Run("default limit", func(t *testing.T) {
		data, info, err := BuildCursorPage(rows(DefaultLimit+1), 0, rowCursor)
		require.NoError(t, err)
		require.Len(t, data, DefaultLimit)
		require.True(t, info.HasMore)
	})
}
