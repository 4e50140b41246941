// Package cursor implements the pagination cursor sum type: an
// OffsetCursor for providers that page by numeric offset and a
// MarkerCursor for providers that hand back an opaque continuation token.
// Both serialize to a single opaque string so the invocation API never
// needs to know which kind a given operation uses.
package cursor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cos/gravyvalet/pkg/errors"
)

// Cursor is satisfied by OffsetCursor and MarkerCursor.
type Cursor interface {
	Serialize() string
	cursorMarker()
}

// OffsetCursor paginates by a numeric offset and a fixed page size.
// TotalCount is not part of the wire format (it is not knowable from a
// serialized cursor alone); it is populated from the page just fetched so
// Next can tell when there is no following page.
type OffsetCursor struct {
	Offset     int
	Limit      int
	TotalCount int // 0 means unknown; Next never reports exhaustion
}

func (c OffsetCursor) cursorMarker() {}

// Serialize renders as "offset|limit", matching the original wire format.
func (c OffsetCursor) Serialize() string {
	return fmt.Sprintf("%d|%d", c.Offset, c.Limit)
}

// Next returns the cursor for the following page, and false if Offset+Limit
// has already reached TotalCount (no following page exists).
func (c OffsetCursor) Next() (OffsetCursor, bool) {
	next := c.Offset + c.Limit
	if c.TotalCount > 0 && next >= c.TotalCount {
		return OffsetCursor{}, false
	}
	return OffsetCursor{Offset: next, Limit: c.Limit, TotalCount: c.TotalCount}, true
}

// MarkerCursor paginates by an opaque continuation token the provider
// itself issued; this package never interprets Marker's contents.
type MarkerCursor struct {
	Marker string
}

func (c MarkerCursor) cursorMarker() {}

// Serialize returns Marker verbatim: the provider's token is already the
// cursor's wire form.
func (c MarkerCursor) Serialize() string {
	return c.Marker
}

// Parse reverses Serialize. The wire format disambiguates by the presence
// of the "|" separator: a string containing one must be a well-formed
// "offset|limit" offset cursor, and a string without one is an opaque
// marker carried verbatim. totalCount, when known (typically the
// total_count just read back from the same page), seeds the resulting
// OffsetCursor's TotalCount so a subsequent Next() can terminate; it has
// no effect when s parses as a MarkerCursor.
func Parse(s string, totalCount int) (Cursor, error) {
	if s == "" {
		return nil, errors.NewInvalidArguments("cursor must not be empty", nil)
	}
	if strings.Contains(s, "|") {
		return parseOffset(s, totalCount)
	}
	return MarkerCursor{Marker: s}, nil
}

// ParsePage parses an optional page-cursor argument, defaulting to the
// first page (offset 0, defaultLimit) when raw is empty, the shape every
// paginated operation's invoke function needs for its "cursor" argument.
func ParsePage(raw string, defaultLimit int) (Cursor, error) {
	if raw == "" {
		return OffsetCursor{Offset: 0, Limit: defaultLimit}, nil
	}
	return Parse(raw, 0)
}

func parseOffset(s string, totalCount int) (Cursor, error) {
	parts := strings.SplitN(s, "|", 2)
	if len(parts) != 2 {
		return nil, errors.NewInvalidArguments(fmt.Sprintf("offset cursor %q must be offset|limit", s), nil)
	}
	offset, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, errors.NewInvalidArguments("offset cursor has a non-numeric offset", err)
	}
	limit, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, errors.NewInvalidArguments("offset cursor has a non-numeric limit", err)
	}
	if offset < 0 || limit <= 0 {
		return nil, errors.NewInvalidArguments("offset cursor must have offset >= 0 and limit > 0", nil)
	}
	return OffsetCursor{Offset: offset, Limit: limit, TotalCount: totalCount}, nil
}
