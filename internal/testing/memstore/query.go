package memstore

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type compareFunc[T any] func(a, b T) int

// sortRows orders rows the way db.OrderBy renders ORDER BY: known fields in
// the requested direction, fallback when none match, then tiebreak ascending.
func sortRows[T any](rows []T, page shared.PageRequest, columns map[string]compareFunc[T], fallback, tiebreak string) {
	type key struct {
		cmp  compareFunc[T]
		desc bool
	}
	var keys []key
	seen := map[string]bool{}
	for _, f := range page.SortBy {
		f = strings.TrimSpace(f)
		c, ok := columns[f]
		if !ok || seen[f] {
			continue
		}
		seen[f] = true
		keys = append(keys, key{cmp: c, desc: !page.Ascending})
	}
	if len(keys) == 0 {
		keys = append(keys, key{cmp: columns[fallback], desc: !page.Ascending})
		seen[fallback] = true
	}
	if !seen[tiebreak] {
		keys = append(keys, key{cmp: columns[tiebreak]})
	}
	slices.SortStableFunc(rows, func(a, b T) int {
		for _, k := range keys {
			n := k.cmp(a, b)
			if k.desc {
				n = -n
			}
			if n != 0 {
				return n
			}
		}
		return 0
	})
}

func paginate[T any](rows []T, page shared.PageRequest) []T {
	page = page.Normalize()
	off := page.Offset()
	if off >= len(rows) {
		return nil
	}
	end := min(off+page.PageSize, len(rows))
	return slices.Clone(rows[off:end])
}

// matches applies predicates joined by AND, or by OR when or is set. No
// predicates matches everything.
func matches[T any](row T, or bool, preds []func(T) bool) bool {
	if len(preds) == 0 {
		return true
	}
	for _, p := range preds {
		ok := p(row)
		if or && ok {
			return true
		}
		if !or && !ok {
			return false
		}
	}
	return !or
}

// nameMatches mirrors `name = $1` and `name ILIKE '%term%'`.
func nameMatches(name, search string, exact bool) bool {
	if exact {
		return name == search
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(search))
}

// Nulls sort last ascending, as Postgres does.
func compareIDPtr(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*a, *b)
}

func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func sortedIDs(ids []int64) []int64 {
	slices.Sort(ids)
	return ids
}
