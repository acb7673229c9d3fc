package routing

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"alertmanager/internal/alert"
)

// Logic combines criteria terms.
type Logic string

const (
	// And requires every term to match.
	And Logic = "AND"
	// Or requires one term to match.
	Or Logic = "OR"
)

// RegexPrefix marks a key whose value is matched as pattern.
const RegexPrefix = "regex:"

// ParseLogic converts and/or names, empty defaults to And.
func ParseLogic(raw string) (Logic, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(And):
		return And, nil
	case string(Or):
		return Or, nil
	default:
		return "", fmt.Errorf("unsupported criteria logic %q", raw)
	}
}

// term is one criteria entry: equality leaf, regex leaf, nested group or match-all.
type term struct {
	key     string
	values  []string
	regex   bool
	raw     string
	pattern *regexp.Regexp
	group   *Criteria
	all     bool
}

// Criteria is a boolean expression tree over alert attributes.
// An empty criteria never matches.
type Criteria struct {
	logic Logic
	terms []term
	err   error
}

// NewCriteria creates empty criteria with given logic.
// Params: And or Or.
// Returns: empty criteria.
func NewCriteria(logic Logic) *Criteria {
	if logic != Or {
		logic = And
	}
	return &Criteria{logic: logic}
}

// Everything returns criteria that matches every alert.
func Everything() *Criteria {
	return &Criteria{logic: And, terms: []term{{all: true}}}
}

// Logic returns node logic.
func (c *Criteria) Logic() Logic {
	return c.logic
}

// Empty reports whether criteria has no terms.
func (c *Criteria) Empty() bool {
	return c == nil || len(c.terms) == 0
}

// Err returns first build error such as an invalid pattern in this tree.
func (c *Criteria) Err() error {
	if c == nil {
		return nil
	}
	if c.err != nil {
		return c.err
	}
	for _, t := range c.terms {
		if t.group != nil {
			if err := t.group.Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Add appends a leaf term without regrouping.
// Params: attribute key (optionally regex: prefixed) and accepted values.
// Returns: same criteria.
func (c *Criteria) Add(key string, values ...any) *Criteria {
	t, err := newLeaf(key, values)
	if err != nil && c.err == nil {
		c.err = err
	}
	c.terms = append(c.terms, t)
	return c
}

// AddGroup appends nested criteria without regrouping.
func (c *Criteria) AddGroup(group *Criteria) *Criteria {
	if group != nil {
		c.terms = append(c.terms, term{group: group})
	}
	return c
}

// Where adds an AND term.
// On an OR node the existing tree and the new term are wrapped in a new AND node.
// Params: key and accepted values.
// Returns: resulting root criteria.
func (c *Criteria) Where(key string, values ...any) *Criteria {
	if c.logic == Or {
		return NewCriteria(And).AddGroup(c).AddGroup(NewCriteria(And).Add(key, values...))
	}
	return c.Add(key, values...)
}

// OrWhere adds an OR term.
// A single-term AND node is promoted to OR in place; a multi-term AND node is
// wrapped together with the new term in a new OR node.
// Params: key and accepted values.
// Returns: resulting root criteria.
func (c *Criteria) OrWhere(key string, values ...any) *Criteria {
	if c.logic == Or || len(c.terms) == 1 {
		c.logic = Or
		return c.Add(key, values...)
	}
	return NewCriteria(Or).AddGroup(c).AddGroup(NewCriteria(And).Add(key, values...))
}

// WhereGroup ANDs this tree with a nested group built by fn.
func (c *Criteria) WhereGroup(fn func(*Criteria) *Criteria) *Criteria {
	return c.wrapGroup(And, fn)
}

// OrWhereGroup ORs this tree with a nested group built by fn.
func (c *Criteria) OrWhereGroup(fn func(*Criteria) *Criteria) *Criteria {
	return c.wrapGroup(Or, fn)
}

func (c *Criteria) wrapGroup(logic Logic, fn func(*Criteria) *Criteria) *Criteria {
	root := NewCriteria(logic)
	if !c.Empty() {
		root.AddGroup(c)
	}
	return root.AddGroup(fn(NewCriteria(And)))
}

// Matches evaluates criteria against alert attributes with short-circuit.
// Params: alert to test.
// Returns: match flag; false for empty criteria.
func (c *Criteria) Matches(a *alert.Alert) bool {
	if c.Empty() {
		return false
	}
	for _, t := range c.terms {
		matched, applicable := t.matches(a)
		if !applicable {
			if c.logic == And {
				return false
			}
			continue
		}
		if matched && c.logic == Or {
			return true
		}
		if !matched && c.logic == And {
			return false
		}
	}
	return c.logic == And
}

// matches returns match result and whether the term could be evaluated.
func (t term) matches(a *alert.Alert) (bool, bool) {
	switch {
	case t.all:
		return true, true
	case t.group != nil:
		return t.group.Matches(a), true
	}
	value, ok := a.Attribute(t.key)
	if !ok || value == nil {
		return false, false
	}
	text := Canonical(value)
	if t.regex {
		return t.pattern != nil && t.pattern.MatchString(text), true
	}
	for _, candidate := range t.values {
		if candidate == text {
			return true, true
		}
	}
	return false, true
}

func newLeaf(key string, values []any) (term, error) {
	if strings.HasPrefix(key, RegexPrefix) {
		t := term{key: strings.TrimPrefix(key, RegexPrefix), regex: true}
		if len(values) == 0 {
			return t, fmt.Errorf("regex term %q requires a pattern", t.key)
		}
		t.raw = Canonical(values[0])
		pattern, err := CompilePattern(t.raw)
		if err != nil {
			return t, fmt.Errorf("regex term %q: %w", t.key, err)
		}
		t.pattern = pattern
		return t, nil
	}
	t := term{key: key, values: make([]string, 0, len(values))}
	for _, value := range values {
		t.values = append(t.values, Canonical(value))
	}
	return t, nil
}

// CompilePattern compiles a pattern, accepting /pattern/flags delimiters.
// Supported flags: i, m, s. Bare patterns compile as-is.
// Params: raw pattern.
// Returns: compiled regexp or error.
func CompilePattern(raw string) (*regexp.Regexp, error) {
	if len(raw) >= 2 && raw[0] == '/' {
		if end := strings.LastIndexByte(raw, '/'); end > 0 {
			body := raw[1:end]
			flags := raw[end+1:]
			var prefix strings.Builder
			for _, flag := range flags {
				switch flag {
				case 'i', 'm', 's':
					prefix.WriteRune(flag)
				case 'u', 'D', 'x':
				default:
					return nil, fmt.Errorf("unsupported pattern flag %q", flag)
				}
			}
			if prefix.Len() > 0 {
				body = "(?" + prefix.String() + ")" + body
			}
			return regexp.Compile(body)
		}
	}
	return regexp.Compile(raw)
}

// Canonical renders scalar attribute value for equality and pattern tests.
// Numbers compare by numeric text so 1, 1.0 and "1"-typed json numbers agree.
func Canonical(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		if f, err := typed.Float64(); err == nil {
			return formatFloat(f)
		}
		return typed.String()
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case uint:
		return strconv.FormatUint(uint64(typed), 10)
	case uint64:
		return strconv.FormatUint(typed, 10)
	case float64:
		return formatFloat(typed)
	case float32:
		return formatFloat(float64(typed))
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(value)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// String renders criteria similar to SQL WHERE syntax.
func (c *Criteria) String() string {
	if c.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteByte('(')
	for i, t := range c.terms {
		if i > 0 {
			b.WriteString(" " + string(c.logic) + " ")
		}
		switch {
		case t.all:
			b.WriteString("*")
		case t.group != nil:
			b.WriteString(t.group.String())
		case t.regex:
			b.WriteString(t.key + "=" + t.raw)
		case len(t.values) == 1:
			b.WriteString(t.key + "=" + t.values[0])
		default:
			b.WriteString(t.key + " IN(" + strings.Join(t.values, ",") + ")")
		}
	}
	b.WriteByte(')')
	return b.String()
}
