package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Op string

const (
	OpEqual       Op = "equal"
	OpNotEqual    Op = "notEqual"
	OpGreaterThan Op = "greaterThan"
	OpLessThan    Op = "lessThan"
	OpSearch      Op = "search"
)

type Filter struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

type Order struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Query selects documents of one collection. Viewer hides private documents
// owned by somebody else; an empty Viewer sees only public documents.
type Query struct {
	Filters []Filter `json:"filters,omitempty"`
	OrderBy []Order  `json:"orderBy,omitempty"`
	Limit   int      `json:"limit,omitempty"`
	Viewer  string   `json:"-"`
}

func Equal(field string, value any) Filter       { return Filter{Field: field, Op: OpEqual, Value: value} }
func NotEqual(field string, value any) Filter    { return Filter{Field: field, Op: OpNotEqual, Value: value} }
func GreaterThan(field string, value any) Filter { return Filter{Field: field, Op: OpGreaterThan, Value: value} }
func LessThan(field string, value any) Filter    { return Filter{Field: field, Op: OpLessThan, Value: value} }
func Search(field, term string) Filter           { return Filter{Field: field, Op: OpSearch, Value: term} }
func Asc(field string) Order                     { return Order{Field: field} }
func Desc(field string) Order                    { return Order{Field: field, Desc: true} }

func (op Op) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpSearch:
		return true
	}
	return false
}

// Validate rejects queries no store can answer.
func (q Query) Validate() error {
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("filter without field")
		}
		if !f.Op.Valid() {
			return fmt.Errorf("unknown filter op %q", f.Op)
		}
	}
	for _, o := range q.OrderBy {
		if o.Field == "" {
			return fmt.Errorf("order without field")
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit")
	}
	return nil
}

// Visible reports whether viewer may read doc.
func Visible(doc Document, viewer string) bool {
	return !doc.Private || (viewer != "" && doc.OwnerID == viewer)
}

// Matches reports whether doc satisfies every filter.
func Matches(doc Document, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}
	body := decodeBody(doc.Data)
	for _, f := range filters {
		v, ok := fieldValue(doc, body, f.Field)
		if !matchOne(v, ok, f) {
			return false
		}
	}
	return true
}

func matchOne(v any, present bool, f Filter) bool {
	switch f.Op {
	case OpEqual:
		return present && compareValues(v, f.Value) == 0
	case OpNotEqual:
		return !present || compareValues(v, f.Value) != 0
	case OpGreaterThan:
		return present && orderable(v, f.Value) && compareValues(v, f.Value) > 0
	case OpLessThan:
		return present && orderable(v, f.Value) && compareValues(v, f.Value) < 0
	case OpSearch:
		s, ok := v.(string)
		term, tok := f.Value.(string)
		return present && ok && tok && strings.Contains(strings.ToLower(s), strings.ToLower(term))
	}
	return false
}

// SortDocuments orders docs in place. The sort is stable, so documents equal
// on every key keep their incoming order.
func SortDocuments(docs []Document, orders []Order) {
	if len(orders) == 0 {
		return
	}
	bodies := make(map[string]map[string]any, len(docs))
	body := func(d Document) map[string]any {
		b, ok := bodies[d.ID]
		if !ok {
			b = decodeBody(d.Data)
			bodies[d.ID] = b
		}
		return b
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range orders {
			a, _ := fieldValue(docs[i], body(docs[i]), o.Field)
			b, _ := fieldValue(docs[j], body(docs[j]), o.Field)
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Apply runs filters, ordering and limit over docs already scoped to a
// collection, returning a new slice.
func Apply(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if Visible(d, q.Viewer) && Matches(d, q.Filters) {
			out = append(out, d)
		}
	}
	SortDocuments(out, q.OrderBy)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// MergePatch shallow-merges the top-level keys of patch into base.
func MergePatch(base, patch json.RawMessage) (json.RawMessage, error) {
	dst := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(base)) > 0 {
		if err := json.Unmarshal(base, &dst); err != nil {
			return nil, ErrInvalidDocument
		}
	}
	src := map[string]json.RawMessage{}
	if err := json.Unmarshal(patch, &src); err != nil || src == nil {
		return nil, ErrInvalidDocument
	}
	for k, v := range src {
		dst[k] = v
	}
	return json.Marshal(dst)
}

// CheckObject verifies data is a JSON object.
func CheckObject(data json.RawMessage) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return ErrInvalidDocument
	}
	return nil
}

func decodeBody(data json.RawMessage) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	return m
}

func fieldValue(doc Document, body map[string]any, field string) (any, bool) {
	switch field {
	case FieldID:
		return doc.ID, true
	case FieldCreatedAt:
		return doc.CreatedAt, true
	case FieldUpdatedAt:
		return doc.UpdatedAt, true
	}
	var cur any = body
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func normalize(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t
		}
		return x
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}
	return v
}

func orderable(a, b any) bool {
	a, b = normalize(a), normalize(b)
	switch a.(type) {
	case time.Time:
		_, ok := b.(time.Time)
		return ok
	case float64:
		_, ok := b.(float64)
		return ok
	case string:
		_, ok := b.(string)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	}
	return false
}

// compareValues orders nil < bool < number < time < string when the kinds
// differ, which keeps sorting total over heterogeneous fields.
func compareValues(a, b any) int {
	a, b = normalize(a), normalize(b)
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case time.Time:
		return x.Compare(b.(time.Time))
	case string:
		return strings.Compare(x, b.(string))
	case nil:
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	}
	return 5
}
