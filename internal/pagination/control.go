package pagination

import "github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"

// window is how many pages are shown on each side of the current one
const window = 2

// Item is one entry of the page selector: a page number or an ellipsis
type Item struct {
	Page     int  `json:"page,omitempty"`
	Current  bool `json:"current,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
}

// Control computes the page selector for a list.
// A nil meta means nothing has been fetched yet and nothing is rendered.
type Control struct {
	meta *domain.Meta
	page int
}

// NewControl builds a control for the given metadata and current page
func NewControl(meta *domain.Meta, page int) *Control {
	return &Control{meta: meta, page: page}
}

// Visible reports whether the control renders at all
func (c *Control) Visible() bool {
	return c.meta != nil
}

// PageCount returns the number of pages, 0 when hidden
func (c *Control) PageCount() int {
	if c.meta == nil {
		return 0
	}
	return c.meta.PageCount
}

// Items returns the page numbers to show: first and last page always, the
// window around the current page, and an ellipsis across any gap.
func (c *Control) Items() []Item {
	if c.meta == nil {
		return nil
	}
	total := c.meta.PageCount
	// a page past the end (stale URL) shows the window at the last page
	anchor := min(max(c.page, 1), total)
	start := max(1, anchor-window)
	end := min(total, anchor+window)

	items := make([]Item, 0, max(0, end-start+1)+4)
	if start > 1 {
		items = append(items, Item{Page: 1})
		if start > 2 {
			items = append(items, Item{Ellipsis: true})
		}
	}
	for p := start; p <= end; p++ {
		items = append(items, Item{Page: p, Current: p == c.page})
	}
	if end < total {
		if end < total-1 {
			items = append(items, Item{Ellipsis: true})
		}
		items = append(items, Item{Page: total})
	}
	return items
}

// HasPrev reports whether Previous is enabled
func (c *Control) HasPrev() bool {
	return c.meta != nil && c.page > 1
}

// HasNext reports whether Next is enabled
func (c *Control) HasNext() bool {
	return c.meta != nil && c.page < c.meta.PageCount
}

// Prev returns the previous page; ok is false at the first page
func (c *Control) Prev() (int, bool) {
	if !c.HasPrev() {
		return c.page, false
	}
	return c.page - 1, true
}

// Next returns the next page; ok is false at the last page
func (c *Control) Next() (int, bool) {
	if !c.HasNext() {
		return c.page, false
	}
	return c.page + 1, true
}

// GoTo accepts n only inside [1, pageCount]
func (c *Control) GoTo(n int) (int, bool) {
	if c.meta == nil || n < 1 || n > c.meta.PageCount {
		return c.page, false
	}
	return n, true
}
