package api

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 500
)

// PaginationMeta is embedded in paginated list responses.
type PaginationMeta struct {
	TotalCount int  `json:"total_count"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
}

// pageRequest holds the "limit", "offset" and "order" query parameters.
type pageRequest struct {
	limit  int
	offset int
	// newestFirst reverses the collection before slicing (order=desc).
	newestFirst bool
}

// parsePagination reads the paging query parameters. Missing values take
// defaults; limit is capped at maxPageLimit. Malformed values are an error.
func parsePagination(r *http.Request) (pageRequest, error) {
	q := r.URL.Query()
	p := pageRequest{limit: defaultPageLimit}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return p, fmt.Errorf("limit must be a positive integer")
		}
		p.limit = min(n, maxPageLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, fmt.Errorf("offset must be a non-negative integer")
		}
		p.offset = n
	}
	switch q.Get("order") {
	case "", "asc":
	case "desc":
		p.newestFirst = true
	default:
		return p, fmt.Errorf("order must be asc or desc")
	}
	return p, nil
}

// paginateSlice returns (start, end) indices for slicing a collection of
// totalCount items, plus the filled PaginationMeta. If offset exceeds
// totalCount, start == end.
func paginateSlice(totalCount, limit, offset int) (start, end int, meta PaginationMeta) {
	start = min(offset, totalCount)
	end = min(start+limit, totalCount)
	meta = PaginationMeta{
		TotalCount: totalCount,
		Limit:      limit,
		Offset:     offset,
		HasMore:    end < totalCount,
	}
	return start, end, meta
}

// paginate applies p to items.
func paginate[T any](items []T, p pageRequest) ([]T, PaginationMeta) {
	if p.newestFirst {
		rev := make([]T, len(items))
		for i, it := range items {
			rev[len(items)-1-i] = it
		}
		items = rev
	}
	start, end, meta := paginateSlice(len(items), p.limit, p.offset)
	return items[start:end], meta
}
