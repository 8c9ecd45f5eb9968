package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

func pages(items []Item) []int {
	out := make([]int, 0, len(items))
	for _, it := range items {
		if it.Ellipsis {
			out = append(out, -1)
			continue
		}
		out = append(out, it.Page)
	}
	return out
}

func TestControlNilMetaRendersNothing(t *testing.T) {
	c := NewControl(nil, 1)
	assert.False(t, c.Visible())
	assert.Nil(t, c.Items())

	_, ok := c.Next()
	assert.False(t, ok)
	_, ok = c.GoTo(1)
	assert.False(t, ok)
}

func TestControlItems(t *testing.T) {
	tests := []struct {
		name      string
		page      int
		pageCount int
		want      []int
	}{
		{"single page", 1, 1, []int{1}},
		{"start", 1, 10, []int{1, 2, 3, -1, 10}},
		{"middle", 5, 10, []int{1, -1, 3, 4, 5, 6, 7, -1, 10}},
		{"end", 10, 10, []int{1, -1, 8, 9, 10}},
		{"window touches first", 3, 10, []int{1, 2, 3, 4, 5, -1, 10}},
		{"window adjacent to first", 4, 10, []int{1, 2, 3, 4, 5, 6, -1, 10}},
		{"no pages", 1, 0, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewControl(&domain.Meta{Page: tt.page, PageCount: tt.pageCount}, tt.page)
			items := c.Items()
			assert.Equal(t, tt.want, pages(items))
			for _, it := range items {
				assert.Equal(t, it.Page == tt.page && !it.Ellipsis, it.Current)
			}
		})
	}
}

func TestControlItemsPastLastPage(t *testing.T) {
	meta := &domain.Meta{Page: 20, PageSize: 20, PageCount: 3, Total: 45}
	c := NewControl(meta, 20)

	items := c.Items()
	assert.Equal(t, []int{1, 2, 3}, pages(items))
	for _, it := range items {
		assert.False(t, it.Current)
	}
	assert.False(t, c.HasNext())
	prev, ok := c.Prev()
	assert.True(t, ok)
	assert.Equal(t, 19, prev)

	far := NewControl(&domain.Meta{Page: 90, PageSize: 10, PageCount: 12, Total: 115}, 90)
	assert.Equal(t, []int{1, -1, 10, 11, 12}, pages(far.Items()))

	none := NewControl(&domain.Meta{Page: 5, PageSize: 10}, 5)
	assert.Empty(t, none.Items())
}

func TestControlPrevNextClamp(t *testing.T) {
	meta := &domain.Meta{Page: 1, PageSize: 20, PageCount: 3, Total: 45}

	first := NewControl(meta, 1)
	_, ok := first.Prev()
	assert.False(t, ok)
	next, ok := first.Next()
	assert.True(t, ok)
	assert.Equal(t, 2, next)

	last := NewControl(meta, 3)
	_, ok = last.Next()
	assert.False(t, ok)
	prev, ok := last.Prev()
	assert.True(t, ok)
	assert.Equal(t, 2, prev)
}

func TestControlGoToRange(t *testing.T) {
	meta := &domain.Meta{Page: 1, PageSize: 20, PageCount: 3, Total: 45}
	c := NewControl(meta, 1)

	for _, n := range []int{1, 2, 3} {
		got, ok := c.GoTo(n)
		assert.True(t, ok)
		assert.Equal(t, n, got)
	}
	for _, n := range []int{0, -1, 4} {
		got, ok := c.GoTo(n)
		assert.False(t, ok)
		assert.Equal(t, 1, got)
	}
}
