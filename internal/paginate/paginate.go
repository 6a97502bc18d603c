// Package paginate slices cached result lists into fixed-size pages and
// renders the navigation controls for them.
package paginate

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Veraticus/gradebot/internal/action"
	"github.com/Veraticus/gradebot/internal/render"
)

// PageSize is shared by every list kind.
const PageSize = 8

// ErrOutOfRange is returned when a page index lies outside the list.
var ErrOutOfRange = errors.New("page index out of range")

// Window is the visible part of a list.
type Window[T any] struct {
	Items   []T
	Index   int
	Count   int
	Total   int
	HasPrev bool
	HasNext bool
}

// PageCount returns ceil(total/size). An empty list still has one page.
func PageCount(total, size int) int {
	if size <= 0 {
		size = PageSize
	}
	if total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

// Clamp forces index into [0, PageCount-1].
func Clamp(index, total, size int) int {
	last := PageCount(total, size) - 1
	switch {
	case index < 0:
		return 0
	case index > last:
		return last
	default:
		return index
	}
}

// Page returns the window at index. Indexes outside the list are a caller
// error; they never wrap around.
func Page[T any](items []T, index, size int) (Window[T], error) {
	if size <= 0 {
		size = PageSize
	}
	count := PageCount(len(items), size)
	if index < 0 || index >= count {
		return Window[T]{}, fmt.Errorf("%w: %d not in [0,%d]", ErrOutOfRange, index, count-1)
	}

	start := index * size
	end := start + size
	if end > len(items) {
		end = len(items)
	}

	return Window[T]{
		Items:   items[start:end],
		Index:   index,
		Count:   count,
		Total:   len(items),
		HasPrev: index > 0,
		HasNext: end < len(items),
	}, nil
}

// Controls renders the previous/next row for a window of list. It returns
// nil for a single-page list.
func Controls[T any](list string, w Window[T]) render.Row {
	var row render.Row
	if w.HasPrev {
		row = append(row, render.NewButton("◀ Prev", action.Must(action.KindPage, list, strconv.Itoa(w.Index-1))))
	}
	if w.HasNext {
		row = append(row, render.NewButton("Next ▶", action.Must(action.KindPage, list, strconv.Itoa(w.Index+1))))
	}
	return row
}

// Caption describes the window position, e.g. "Page 2 of 5". Single-page
// lists get an empty caption.
func Caption[T any](w Window[T]) string {
	if w.Count <= 1 {
		return ""
	}
	return fmt.Sprintf("Page %d of %d", w.Index+1, w.Count)
}
