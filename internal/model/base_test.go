package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPagination_Offset(t *testing.T) {
	tests := []struct {
		name string
		p    Pagination
		want int
	}{
		{"first page", Pagination{Page: 1, PageSize: 20}, 0},
		{"third page", Pagination{Page: 3, PageSize: 20}, 40},
		{"zero page", Pagination{Page: 0, PageSize: 20}, 0},
		{"zero size", Pagination{Page: 5}, 0},
		{"huge page", Pagination{Page: 922337203685477581, PageSize: 20}, math.MaxInt},
		{"max page", Pagination{Page: math.MaxInt, PageSize: 100}, math.MaxInt},
		{"largest addressable", Pagination{Page: math.MaxInt/20 + 1, PageSize: 20}, (math.MaxInt / 20) * 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.p.Offset()
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
		})
	}
}

func TestPagination_Normalize(t *testing.T) {
	p := Pagination{Page: -3, PageSize: 0}.Normalize(20, 100)
	assert.Equal(t, Pagination{Page: 1, PageSize: 20}, p)

	p = Pagination{Page: 922337203685477581, PageSize: 500}.Normalize(20, 100)
	assert.Equal(t, 922337203685477581, p.Page)
	assert.Equal(t, 100, p.PageSize)
}
