package db

import (
	"strconv"
	"strings"
)

// OrderBy renders an ORDER BY list from caller sort fields. Only fields present
// in columns are used; fallback applies when none match. tiebreak keeps page
// boundaries stable.
func OrderBy(fields []string, ascending bool, columns map[string]string, fallback, tiebreak string) string {
	dir := " DESC"
	if ascending {
		dir = " ASC"
	}
	parts := make([]string, 0, len(fields)+1)
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		col, ok := columns[strings.TrimSpace(f)]
		if !ok {
			continue
		}
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		parts = append(parts, col+dir)
	}
	if len(parts) == 0 {
		parts = append(parts, fallback+dir)
		seen[fallback] = struct{}{}
	}
	if _, ok := seen[tiebreak]; !ok && tiebreak != "" {
		parts = append(parts, tiebreak+" ASC")
	}
	return strings.Join(parts, ", ")
}

// Where accumulates predicates and positional arguments for dynamic queries.
type Where struct {
	clauses []string
	args    []any
}

// Arg appends value and returns its placeholder.
func (w *Where) Arg(value any) string {
	w.args = append(w.args, value)
	return "$" + strconv.Itoa(len(w.args))
}

// Add appends a predicate built with Arg placeholders.
func (w *Where) Add(clause string) {
	w.clauses = append(w.clauses, clause)
}

// Args returns the accumulated arguments.
func (w *Where) Args() []any {
	return w.args
}

// SQL renders the predicates joined by AND, or by OR when or is set.
func (w *Where) SQL(or bool) string {
	if len(w.clauses) == 0 {
		return ""
	}
	sep := " AND "
	if or {
		sep = " OR "
	}
	return " WHERE (" + strings.Join(w.clauses, sep) + ")"
}

// Like wraps a search term for substring matching.
func Like(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}
