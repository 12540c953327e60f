package shared

import (
	"net/http"
	"strconv"
	"strings"
)

// ListFilters represents standard list filters
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	SortBy   string
	SortDir  string
	IsActive *bool
}

// Offset returns the SQL offset for the current page.
func (f ListFilters) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// FiltersFromRequest reads page, limit, search, sort, dir and is_active.
func FiltersFromRequest(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = DefaultPage
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	f := ListFilters{
		Page:    page,
		Limit:   limit,
		Search:  strings.TrimSpace(q.Get("search")),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
	}
	if raw := q.Get("is_active"); raw != "" {
		active := raw == "true" || raw == "1"
		f.IsActive = &active
	}
	return f
}

// Direction normalises the sort direction for SQL.
func (f ListFilters) Direction() string {
	if strings.EqualFold(f.SortDir, SortDesc) {
		return "DESC"
	}
	return "ASC"
}
