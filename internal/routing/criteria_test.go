package routing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertmanager/internal/alert"
)

func alertWith(pairs ...any) *alert.Alert {
	attrs := alert.Attributes{}
	for i := 0; i+1 < len(pairs); i += 2 {
		attrs.Set(pairs[i].(string), pairs[i+1])
	}
	return alert.New("test", attrs, time.Unix(1_000, 0))
}

func TestCriteriaEmptyNeverMatches(t *testing.T) {
	t.Parallel()

	assert.False(t, NewCriteria(And).Matches(alertWith("a", 1)))
	assert.False(t, NewCriteria(Or).Matches(alertWith("a", 1)))
	var nilCriteria *Criteria
	assert.False(t, nilCriteria.Matches(alertWith("a", 1)))
}

func TestCriteriaWhereOrWhereAlgebra(t *testing.T) {
	t.Parallel()

	either := NewCriteria(And).Where("a", 1).OrWhere("b", 2)
	assert.Equal(t, Or, either.Logic())
	assert.True(t, either.Matches(alertWith("a", 1)))
	assert.True(t, either.Matches(alertWith("b", 2)))
	assert.False(t, either.Matches(alertWith("a", 2, "b", 1)))
	assert.False(t, either.Matches(alertWith("c", 1)))

	both := NewCriteria(And).Where("a", 1).Where("b", 2)
	assert.True(t, both.Matches(alertWith("a", 1, "b", 2)))
	assert.False(t, both.Matches(alertWith("a", 1)))
	assert.False(t, both.Matches(alertWith("a", 1, "b", 3)))
}

func TestCriteriaOrWhereWrapsMultiTermAnd(t *testing.T) {
	t.Parallel()

	c := NewCriteria(And).Where("a", 1).Where("b", 2).OrWhere("c", 3)
	assert.Equal(t, "((a=1 AND b=2) OR (c=3))", c.String())
	assert.True(t, c.Matches(alertWith("a", 1, "b", 2)))
	assert.True(t, c.Matches(alertWith("c", 3)))
	assert.False(t, c.Matches(alertWith("a", 1, "c", 4)))
}

func TestCriteriaWhereOnOrWraps(t *testing.T) {
	t.Parallel()

	c := NewCriteria(And).Where("a", 1).OrWhere("b", 2).Where("env", "prod")
	assert.Equal(t, "((a=1 OR b=2) AND (env=prod))", c.String())
	assert.True(t, c.Matches(alertWith("b", 2, "env", "prod")))
	assert.False(t, c.Matches(alertWith("b", 2, "env", "dev")))
}

func TestCriteriaMissingKeySemantics(t *testing.T) {
	t.Parallel()

	and := NewCriteria(And).Where("missing", "x")
	assert.False(t, and.Matches(alertWith("present", "x")))

	or := NewCriteria(Or).Add("missing", "x").Add("present", "x")
	assert.True(t, or.Matches(alertWith("present", "x")))
	assert.False(t, NewCriteria(Or).Add("missing", "").Matches(alertWith("present", "x")))
}

func TestCriteriaSetMembershipAndCanonicalValues(t *testing.T) {
	t.Parallel()

	c := NewCriteria(And).Where("code", 500, 502, 503)
	assert.True(t, c.Matches(alertWith("code", json.Number("502"))))
	assert.True(t, c.Matches(alertWith("code", "503")))
	assert.True(t, c.Matches(alertWith("code", 500.0)))
	assert.False(t, c.Matches(alertWith("code", 404)))

	flag := NewCriteria(And).Where("critical", true)
	assert.True(t, flag.Matches(alertWith("critical", true)))
	assert.False(t, flag.Matches(alertWith("critical", false)))
	assert.Equal(t, "(code IN(500,502,503))", c.String())
}

func TestCriteriaRegex(t *testing.T) {
	t.Parallel()

	c := NewCriteria(And).Where("regex:host", "/^DB-\\d+$/i")
	require.NoError(t, c.Err())
	assert.True(t, c.Matches(alertWith("host", "db-12")))
	assert.False(t, c.Matches(alertWith("host", "web-1")))

	bare := NewCriteria(And).Where("regex:port", "^80")
	assert.True(t, bare.Matches(alertWith("port", 8080)))

	broken := NewCriteria(And).Where("regex:host", "/[/")
	assert.Error(t, broken.Err())
	assert.False(t, broken.Matches(alertWith("host", "[")))

	_, err := CompilePattern("/x/q")
	assert.Error(t, err)
}

func TestCriteriaGroups(t *testing.T) {
	t.Parallel()

	c := NewCriteria(And).Where("env", "prod").OrWhereGroup(func(g *Criteria) *Criteria {
		return g.Where("team", "db").Where("sev", "high")
	})
	assert.Equal(t, Or, c.Logic())
	assert.True(t, c.Matches(alertWith("env", "prod")))
	assert.True(t, c.Matches(alertWith("team", "db", "sev", "high")))
	assert.False(t, c.Matches(alertWith("team", "db", "sev", "low")))

	g := NewCriteria(And).WhereGroup(func(g *Criteria) *Criteria {
		return g.Where("a", 1).OrWhere("b", 2)
	})
	assert.True(t, g.Matches(alertWith("b", 2)))

	emptyNested := NewCriteria(And).Where("a", 1).WhereGroup(func(g *Criteria) *Criteria { return g })
	assert.False(t, emptyNested.Matches(alertWith("a", 1)))
}

func TestEverythingMatchesAll(t *testing.T) {
	t.Parallel()

	assert.True(t, Everything().Matches(alertWith()))
	assert.True(t, Everything().Matches(alertWith("x", 1)))
}
