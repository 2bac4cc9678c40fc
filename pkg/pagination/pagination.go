package pagination

import (
	"errors"
	"fmt"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

var ErrInvalidPerPage = errors.New("perPage must be a positive number")

// Direction is the way a cursor moves through an ordered collection.
type Direction uint8

const (
	// Next returns the page starting after the cursor document.
	Next Direction = iota
	// Previous returns the page ending before the cursor document.
	Previous
)

func (d Direction) String() string {
	if d == Previous {
		return "previous"
	}
	return "next"
}

// Cursor is a keyset position in an ordered collection. DocID is the opaque id
// of the boundary document; an empty DocID means the first page.
type Cursor struct {
	Direction Direction
	DocID     string
	PerPage   int
}

// First returns a cursor for the first page.
func First(perPage int) Cursor {
	return Cursor{Direction: Next, PerPage: clamp(perPage)}
}

// IsStart reports whether the cursor has no boundary document.
func (c Cursor) IsStart() bool { return c.DocID == "" }

func (c Cursor) String() string {
	if c.IsStart() {
		return fmt.Sprintf("first %d", c.PerPage)
	}
	return fmt.Sprintf("%s %d from %s", c.Direction, c.PerPage, c.DocID)
}

// FromInput builds a cursor from the GraphQL Pagination input
// {next, afterDocID, beforeDocID, perPage}. With next set the cursor starts
// after afterDocID, otherwise it ends before beforeDocID. A boundary id given
// for the other direction is ignored.
func FromInput(in map[string]interface{}) (Cursor, error) {
	perPage, ok := toInt(in["perPage"])
	if !ok || perPage <= 0 {
		return Cursor{}, ErrInvalidPerPage
	}

	next, _ := in["next"].(bool)
	c := Cursor{PerPage: clamp(perPage)}
	if next {
		c.Direction = Next
		c.DocID, _ = in["afterDocID"].(string)
	} else {
		c.Direction = Previous
		c.DocID, _ = in["beforeDocID"].(string)
	}
	return c, nil
}

func clamp(perPage int) int {
	if perPage <= 0 {
		return DefaultPerPage
	}
	if perPage > MaxPerPage {
		return MaxPerPage
	}
	return perPage
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// Reverse reverses items in place. Stores read a Previous page in inverted
// order and flip it back before returning it.
func Reverse[T any](items []T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
