package pagination

import (
	"net/url"
	"strconv"
)

// Query parameter names carrying the page state
const (
	ParamPage     = "page"
	ParamPageSize = "pageSize"
)

// Defaults used when the URL carries no usable page state
const (
	DefaultPage     = 1
	DefaultPageSize = 25
)

// State is the current page and page size of a list view.
// PRE: Page >= 1, PageSize >= 1
type State struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Options bound the page size accepted from the URL
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultOptions returns the built-in bounds
func DefaultOptions() Options {
	return Options{DefaultPageSize: DefaultPageSize, MaxPageSize: 100}
}

func (o Options) normalized() Options {
	if o.DefaultPageSize < 1 {
		o.DefaultPageSize = DefaultPageSize
	}
	if o.MaxPageSize < o.DefaultPageSize {
		o.MaxPageSize = o.DefaultPageSize
	}
	return o
}

// FromURL reads page state from query values.
// Missing, non-numeric and non-positive values fall back to the defaults.
// The page is never clamped against a page count here.
func FromURL(q url.Values, opts Options) State {
	opts = opts.normalized()
	s := State{
		Page:     positiveOr(q.Get(ParamPage), DefaultPage),
		PageSize: positiveOr(q.Get(ParamPageSize), opts.DefaultPageSize),
	}
	if s.PageSize > opts.MaxPageSize {
		s.PageSize = opts.MaxPageSize
	}
	return s
}

func positiveOr(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// SetPage moves to page n; non-positive values are ignored
func (s State) SetPage(n int) State {
	if n >= 1 {
		s.Page = n
	}
	return s
}

// SetPageSize changes the page size and goes back to the first page
func (s State) SetPageSize(n int) State {
	if n >= 1 {
		s.PageSize = n
		s.Page = 1
	}
	return s
}

// Values renders the state as query values
func (s State) Values() url.Values {
	v := url.Values{}
	v.Set(ParamPage, strconv.Itoa(s.Page))
	v.Set(ParamPageSize, strconv.Itoa(s.PageSize))
	return v
}

// ApplyTo returns a copy of u with the page state written into its query,
// keeping every other parameter.
func (s State) ApplyTo(u *url.URL) *url.URL {
	out := *u
	q := out.Query()
	q.Set(ParamPage, strconv.Itoa(s.Page))
	q.Set(ParamPageSize, strconv.Itoa(s.PageSize))
	out.RawQuery = q.Encode()
	return &out
}

// URLFor returns u rewritten for page n with the same page size
func (s State) URLFor(u *url.URL, n int) string {
	return s.SetPage(n).ApplyTo(u).String()
}
