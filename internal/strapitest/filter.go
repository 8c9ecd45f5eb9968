package strapitest

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/domain"
)

type condition struct {
	path   []string
	op     string
	values []string
}

// parsed filters: plain conditions all have to hold, and when $or groups
// are present at least one group has to hold entirely
type filterSet struct {
	and []*condition
	or  map[string][]*condition
}

func splitKey(key string) []string {
	var segs []string
	for {
		open := strings.IndexByte(key, '[')
		if open < 0 {
			return segs
		}
		end := strings.IndexByte(key[open:], ']')
		if end < 0 {
			return segs
		}
		segs = append(segs, key[open+1:open+end])
		key = key[open+end+1:]
	}
}

func parseFilters(q url.Values) filterSet {
	fs := filterSet{or: make(map[string][]*condition)}
	index := make(map[string]*condition)

	keys := make([]string, 0, len(q))
	for k := range q {
		if strings.HasPrefix(k, "filters[") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		segs := splitKey(key)
		group := ""
		if len(segs) > 2 && (segs[0] == "$or" || segs[0] == "$and") {
			if segs[0] == "$or" {
				group = segs[1]
			}
			segs = segs[2:]
		}
		opAt := -1
		for i, seg := range segs {
			if strings.HasPrefix(seg, "$") {
				opAt = i
				break
			}
		}
		if opAt < 1 {
			continue
		}
		path, op := segs[:opAt], segs[opAt]
		id := group + "|" + strings.Join(path, ".") + "|" + op

		c, ok := index[id]
		if !ok {
			c = &condition{path: path, op: op}
			index[id] = c
			if group == "" {
				fs.and = append(fs.and, c)
			} else {
				fs.or[group] = append(fs.or[group], c)
			}
		}
		c.values = append(c.values, q[key]...)
	}
	return fs
}

func filterRecords(all []domain.Record, q url.Values) []domain.Record {
	fs := parseFilters(q)
	out := make([]domain.Record, 0, len(all))
	for _, rec := range all {
		if fs.match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func (fs filterSet) match(rec domain.Record) bool {
	for _, c := range fs.and {
		if !c.match(rec) {
			return false
		}
	}
	if len(fs.or) == 0 {
		return true
	}
	for _, group := range fs.or {
		all := true
		for _, c := range group {
			if !c.match(rec) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func (c *condition) match(rec domain.Record) bool {
	values := resolve(map[string]interface{}(rec), c.path)
	if len(values) == 0 {
		values = []interface{}{nil}
	}
	for _, v := range values {
		if c.matchValue(v) {
			return true
		}
	}
	return false
}

func resolve(v interface{}, path []string) []interface{} {
	if len(path) == 0 {
		return []interface{}{v}
	}
	switch t := v.(type) {
	case map[string]interface{}:
		return resolve(t[path[0]], path[1:])
	case domain.Record:
		return resolve(map[string]interface{}(t), path)
	case []interface{}:
		var out []interface{}
		for _, item := range t {
			out = append(out, resolve(item, path)...)
		}
		return out
	}
	return nil
}

func (c *condition) matchValue(v interface{}) bool {
	s := stringify(v)
	first := ""
	if len(c.values) > 0 {
		first = c.values[0]
	}
	switch c.op {
	case "$eq":
		return v != nil && s == first
	case "$eqi":
		return v != nil && strings.EqualFold(s, first)
	case "$ne":
		return s != first
	case "$containsi":
		return v != nil && strings.Contains(strings.ToLower(s), strings.ToLower(first))
	case "$in":
		for _, want := range c.values {
			if v != nil && s == want {
				return true
			}
		}
		return false
	case "$notIn":
		for _, want := range c.values {
			if s == want {
				return false
			}
		}
		return true
	case "$null":
		return (v == nil) == (first == "true")
	case "$notNull":
		return (v != nil) == (first == "true")
	case "$lt", "$lte", "$gt", "$gte":
		return compare(s, first, c.op)
	}
	return false
}

func compare(a, b, op string) bool {
	var cmp int
	af, errA := strconv.ParseFloat(a, 64)
	bf, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case af < bf:
			cmp = -1
		case af > bf:
			cmp = 1
		}
	default:
		cmp = strings.Compare(a, b)
	}
	switch op {
	case "$lt":
		return cmp < 0
	case "$lte":
		return cmp <= 0
	case "$gt":
		return cmp > 0
	default:
		return cmp >= 0
	}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func sortRecords(records []domain.Record, q url.Values) {
	var keys []string
	for i := 0; ; i++ {
		s := q.Get(fmt.Sprintf("sort[%d]", i))
		if s == "" {
			break
		}
		keys = append(keys, s)
	}
	if s := q.Get("sort"); s != "" {
		keys = append(keys, s)
	}
	if len(keys) == 0 {
		return
	}

	sort.SliceStable(records, func(i, j int) bool {
		for _, key := range keys {
			field, dir, _ := strings.Cut(key, ":")
			a := stringify(records[i][field])
			b := stringify(records[j][field])
			if a == b {
				continue
			}
			less := compare(a, b, "$lt")
			if dir == "desc" {
				return !less
			}
			return less
		}
		return false
	})
}
