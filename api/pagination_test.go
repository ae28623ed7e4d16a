package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantDesc   bool
		wantErr    bool
	}{
		{name: "defaults", query: "", wantLimit: defaultPageLimit},
		{name: "custom limit", query: "limit=50", wantLimit: 50},
		{name: "custom offset", query: "offset=10", wantLimit: defaultPageLimit, wantOffset: 10},
		{name: "both", query: "limit=25&offset=5", wantLimit: 25, wantOffset: 5},
		{name: "limit exceeds max", query: "limit=5000", wantLimit: maxPageLimit},
		{name: "descending", query: "order=desc", wantLimit: defaultPageLimit, wantDesc: true},
		{name: "ascending", query: "order=asc", wantLimit: defaultPageLimit},
		{name: "zero offset", query: "offset=0", wantLimit: defaultPageLimit},
		{name: "negative limit", query: "limit=-1", wantErr: true},
		{name: "zero limit", query: "limit=0", wantErr: true},
		{name: "negative offset", query: "offset=-5", wantErr: true},
		{name: "non-numeric limit", query: "limit=abc", wantErr: true},
		{name: "non-numeric offset", query: "offset=xyz", wantErr: true},
		{name: "bad order", query: "order=sideways", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/journal"
			if tt.query != "" {
				url += "?" + tt.query
			}
			p, err := parsePagination(httptest.NewRequest("GET", url, nil))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, p.limit, "limit")
			assert.Equal(t, tt.wantOffset, p.offset, "offset")
			assert.Equal(t, tt.wantDesc, p.newestFirst, "order")
		})
	}
}

func TestPaginateSlice(t *testing.T) {
	tests := []struct {
		name                 string
		total, limit, offset int
		wantStart, wantEnd   int
		wantMore             bool
	}{
		{name: "first page", total: 50, limit: 10, offset: 0, wantStart: 0, wantEnd: 10, wantMore: true},
		{name: "second page", total: 50, limit: 10, offset: 10, wantStart: 10, wantEnd: 20, wantMore: true},
		{name: "last page partial", total: 25, limit: 10, offset: 20, wantStart: 20, wantEnd: 25},
		{name: "offset beyond total", total: 5, limit: 10, offset: 100, wantStart: 5, wantEnd: 5},
		{name: "exact fit", total: 10, limit: 10, offset: 0, wantStart: 0, wantEnd: 10},
		{name: "empty", total: 0, limit: 10, offset: 0, wantStart: 0, wantEnd: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, meta := paginateSlice(tt.total, tt.limit, tt.offset)
			assert.Equal(t, tt.wantStart, start, "start")
			assert.Equal(t, tt.wantEnd, end, "end")
			assert.Equal(t, tt.total, meta.TotalCount)
			assert.Equal(t, tt.limit, meta.Limit)
			assert.Equal(t, tt.offset, meta.Offset)
			assert.Equal(t, tt.wantMore, meta.HasMore)
		})
	}
}

func TestPaginateNewestFirst(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page, meta := paginate(items, pageRequest{limit: 2, newestFirst: true})
	assert.Equal(t, []int{5, 4}, page)
	assert.True(t, meta.HasMore)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, items, "input must not be reordered")

	page, meta = paginate(items, pageRequest{limit: 2, offset: 4})
	assert.Equal(t, []int{5}, page)
	assert.False(t, meta.HasMore)
}
