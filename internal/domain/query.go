package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Operator is a backend filter operator
type Operator string

const (
	OpEq        Operator = "$eq"
	OpNe        Operator = "$ne"
	OpContainsi Operator = "$containsi"
	OpIn        Operator = "$in"
	OpNotIn     Operator = "$notIn"
	OpNull      Operator = "$null"
	OpNotNull   Operator = "$notNull"
	OpLt        Operator = "$lt"
	OpLte       Operator = "$lte"
	OpGt        Operator = "$gt"
	OpGte       Operator = "$gte"
)

// Filter is either a condition on a field or an $or / $and group.
// Field may walk relations with dots: "user.email".
type Filter struct {
	Field string
	Op    Operator
	Value interface{}
	Or    []Filter
	And   []Filter
}

// Eq matches field == value
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// ContainsI matches a case-insensitive substring
func ContainsI(field, value string) Filter {
	return Filter{Field: field, Op: OpContainsi, Value: value}
}

// In matches any of values
func In(field string, values ...interface{}) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

// NotNull matches fields that are set
func NotNull(field string) Filter {
	return Filter{Field: field, Op: OpNotNull, Value: true}
}

// Or groups alternatives
func Or(filters ...Filter) Filter {
	return Filter{Or: filters}
}

// And groups conjunctions
func And(filters ...Filter) Filter {
	return Filter{And: filters}
}

// Pagination is the requested page
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Query is the collection query descriptor
type Query struct {
	Filters    []Filter
	Sort       []string // "field:asc" or "field:desc"
	Populate   []string // relation names, or the single entry "*"
	Fields     []string
	Pagination *Pagination
}

// PopulateAll expands every relation
var PopulateAll = []string{"*"}

// Validate checks the descriptor invariants
func (q Query) Validate() error {
	if q.Pagination != nil {
		if q.Pagination.Page < 1 {
			return NewValidationError("pagination.page", "must be a positive integer")
		}
		if q.Pagination.PageSize < 1 {
			return NewValidationError("pagination.pageSize", "must be a positive integer")
		}
	}
	for _, s := range q.Sort {
		field, dir, found := strings.Cut(s, ":")
		if field == "" {
			return NewValidationError("sort", fmt.Sprintf("empty field in %q", s))
		}
		if found && dir != "asc" && dir != "desc" {
			return NewValidationError("sort", fmt.Sprintf("direction must be asc or desc in %q", s))
		}
	}
	for _, f := range q.Filters {
		if err := f.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (f Filter) validate() error {
	if len(f.Or) > 0 || len(f.And) > 0 {
		for _, c := range append(append([]Filter{}, f.Or...), f.And...) {
			if err := c.validate(); err != nil {
				return err
			}
		}
		return nil
	}
	if f.Field == "" || f.Op == "" {
		return NewValidationError("filters", "condition needs a field and an operator")
	}
	return nil
}

// Clone returns a deep copy of the descriptor's slices
func (q Query) Clone() Query {
	out := Query{
		Filters:  append([]Filter(nil), q.Filters...),
		Sort:     append([]string(nil), q.Sort...),
		Populate: append([]string(nil), q.Populate...),
		Fields:   append([]string(nil), q.Fields...),
	}
	if q.Pagination != nil {
		p := *q.Pagination
		out.Pagination = &p
	}
	return out
}

// WithPage returns a copy targeting another page
func (q Query) WithPage(page, pageSize int) Query {
	out := q.Clone()
	out.Pagination = &Pagination{Page: page, PageSize: pageSize}
	return out
}

// Encode renders the nested query string the backend understands. Output is
// deterministic for equal descriptors, so it is also used as the cache key.
func (q Query) Encode() string {
	var pairs []string
	add := func(key string, value interface{}) {
		pairs = append(pairs, key+"="+url.QueryEscape(formatValue(value)))
	}

	for _, f := range q.Filters {
		encodeFilter("filters", f, add)
	}
	for i, s := range q.Sort {
		add(fmt.Sprintf("sort[%d]", i), s)
	}
	if len(q.Populate) == 1 && q.Populate[0] == "*" {
		add("populate", "*")
	} else {
		for i, p := range q.Populate {
			add(fmt.Sprintf("populate[%d]", i), p)
		}
	}
	for i, f := range q.Fields {
		add(fmt.Sprintf("fields[%d]", i), f)
	}
	if q.Pagination != nil {
		add("pagination[page]", q.Pagination.Page)
		add("pagination[pageSize]", q.Pagination.PageSize)
	}
	return strings.Join(pairs, "&")
}

func encodeFilter(prefix string, f Filter, add func(string, interface{})) {
	if len(f.Or) > 0 {
		for i, c := range f.Or {
			encodeFilter(fmt.Sprintf("%s[$or][%d]", prefix, i), c, add)
		}
		return
	}
	if len(f.And) > 0 {
		for i, c := range f.And {
			encodeFilter(fmt.Sprintf("%s[$and][%d]", prefix, i), c, add)
		}
		return
	}

	key := prefix
	for _, seg := range strings.Split(f.Field, ".") {
		key += "[" + url.QueryEscape(seg) + "]"
	}
	key += "[" + string(f.Op) + "]"

	if values, ok := f.Value.([]interface{}); ok {
		for i, v := range values {
			add(fmt.Sprintf("%s[%d]", key, i), v)
		}
		return
	}
	add(key, f.Value)
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// Values returns the encoded descriptor as url.Values, for endpoints that
// take raw query parameters
func (q Query) Values() url.Values {
	v, _ := url.ParseQuery(q.Encode())
	return v
}

// CacheKey identifies (collection, descriptor)
func CacheKey(collection string, q Query) string {
	return collection + "?" + q.Encode()
}

// CollectionPrefix is the cache key prefix shared by all queries on collection
func CollectionPrefix(collection string) string {
	return collection + "?"
}
