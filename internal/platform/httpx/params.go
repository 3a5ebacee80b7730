package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// PathID parses a positive int64 URL parameter.
func PathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.CodeMandatoryParams.New(name)
	}
	return id, nil
}

// QueryID parses an optional positive int64 query parameter.
func QueryID(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, shared.CodeMandatoryParams.New(name)
	}
	return &id, nil
}

// BodyID reads a positive int64 field of a JSON body and restores the body
// for the next reader. Missing or malformed values yield nil.
func BodyID(r *http.Request, name string) (*int64, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	buf, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(buf, &fields) != nil {
		return nil, nil
	}
	var id int64
	if raw, ok := fields[name]; !ok || json.Unmarshal(raw, &id) != nil || id <= 0 {
		return nil, nil
	}
	return &id, nil
}

// QueryIDs parses a comma separated list of ids.
func QueryIDs(r *http.Request, name string) ([]int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return nil, shared.CodeMandatoryParams.New(name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string, fallback bool) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

// PageRequest reads pageNo, pageSize, sortBy and asc.
func PageRequest(r *http.Request) shared.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("pageNo"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	var sortBy []string
	if raw := strings.TrimSpace(q.Get("sortBy")); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				sortBy = append(sortBy, f)
			}
		}
	}
	return shared.PageRequest{
		Page:      page,
		PageSize:  size,
		SortBy:    sortBy,
		Ascending: QueryBool(r, "asc", true),
	}.Normalize()
}
