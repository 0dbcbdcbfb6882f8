package pagination

import (
	"encoding/base64"
	"encoding/json"
)

const (
	DefaultLimit = 10
	MaxLimit     = 250
)

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=10" binding:"gte=0,lte=250"`
}

// Cursor is the opaque position handed back to clients. After holds the sort
// key of the last row of the previous page.
type Cursor struct {
	After string `json:"after,omitempty"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	if data == "" {
		return &Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// BuildCursorPage trims the over-fetched row added by option.ApplyPagination and
// returns the page together with its PageInfo.
func BuildCursorPage[T any](data []*T, limit int, extractCursor func(*T) string) ([]*T, *PageInfo, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	if len(data) == 0 {
		return data, &PageInfo{HasMore: false}, nil
	}

	hasMore := false
	if len(data) > limit {
		hasMore = true
		data = data[:limit]
	}

	info := &PageInfo{HasMore: hasMore}
	if hasMore {
		next, err := EncodeCursor(Cursor{After: extractCursor(data[len(data)-1])})
		if err != nil {
			return nil, nil, err
		}
		info.NextCursor = next
	}

	return data, info, nil
}
