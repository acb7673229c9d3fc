package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertmanager/internal/alert"
)

type countingDestination struct {
	name    string
	calls   int
	handled bool
	err     error
	trace   *[]string
}

func (d *countingDestination) Route(_ context.Context, _ *alert.Alert) (bool, error) {
	d.calls++
	if d.trace != nil {
		*d.trace = append(*d.trace, d.name)
	}
	return d.handled, d.err
}

func newDest(name string, trace *[]string) *countingDestination {
	return &countingDestination{name: name, handled: true, trace: trace}
}

func TestRouteTestAndDelegation(t *testing.T) {
	t.Parallel()

	dest := newDest("d", nil)
	route := To(dest)
	assert.False(t, route.Test(alertWith("a", 1)))

	route.Where("a", 1)
	assert.True(t, route.Test(alertWith("a", 1)))

	handled, err := route.Route(context.Background(), alertWith("a", 2))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 1, dest.calls)

	hole := Drop().Where("a", 1)
	handled, err = hole.Route(context.Background(), alertWith("a", 1))
	require.NoError(t, err)
	assert.True(t, handled)
}

func TestRouteOrWhereWithoutCriteriaStartsThem(t *testing.T) {
	t.Parallel()

	route := Drop().OrWhere("a", 1).OrWhere("b", 2)
	assert.True(t, route.Test(alertWith("b", 2)))
}

func TestRouterFirstMatchWins(t *testing.T) {
	t.Parallel()

	var trace []string
	router := NewRouter()
	router.Add(To(newDest("r1", &trace)).Where("a", 1))
	router.Add(To(newDest("r2", &trace)).Where("a", 1))

	handled, err := router.Route(context.Background(), alertWith("a", 1))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"r1"}, trace)
}

func TestRouterContinuation(t *testing.T) {
	t.Parallel()

	build := func(r2 Action, trace *[]string) *Router {
		router := NewRouter()
		router.Add(To(newDest("r1", trace)).Where("x", 1))
		router.Add(To(newDest("r2", trace)).Where("a", 1)).As(r2)
		router.Add(To(newDest("r3", trace)).Where("a", 1))
		return router
	}

	var trace []string
	_, err := build(Continue, &trace).Route(context.Background(), alertWith("a", 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r3"}, trace)

	trace = nil
	_, err = build(End, &trace).Route(context.Background(), alertWith("a", 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, trace)
}

func TestRouterStopFencesOnlyAfterHit(t *testing.T) {
	t.Parallel()

	build := func(trace *[]string) *Router {
		router := NewRouter()
		router.Add(To(newDest("a", trace)).Where("team", "a")).Continue()
		router.Add(To(newDest("b", trace)).Where("team", "b")).Continue()
		router.Add(To(newDest("c", trace)).Where("team", "c")).Stop()
		router.Add(To(newDest("d", trace)).Where("all", "yes"))
		return router
	}

	var trace []string
	handled, err := build(&trace).Route(context.Background(), alertWith("team", "a", "all", "yes"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"a"}, trace)

	trace = nil
	handled, err = build(&trace).Route(context.Background(), alertWith("team", "z", "all", "yes"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"d"}, trace)
}

func TestRouterNoRouteIsDistinctFromBlackHole(t *testing.T) {
	t.Parallel()

	router := NewRouter()
	router.Add(Drop().Where("drop", "yes"))

	handled, err := router.Route(context.Background(), alertWith("drop", "no"))
	require.NoError(t, err)
	assert.False(t, handled)

	handled, err = router.Route(context.Background(), alertWith("drop", "yes"))
	require.NoError(t, err)
	assert.True(t, handled)
}

func TestRouterFallsThroughUnhandledNestedRouter(t *testing.T) {
	t.Parallel()

	var trace []string
	nested := NewRouter()
	nested.Add(To(newDest("nested", &trace)).Where("svc", "db"))

	router := NewRouter()
	router.Add(To(nested).When(Everything()))
	router.Add(To(newDest("fallback", &trace)).When(Everything()))

	handled, err := router.Route(context.Background(), alertWith("svc", "web"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"fallback"}, trace)
}

func TestRouterCollectsErrorsAndNotifiesObserver(t *testing.T) {
	t.Parallel()

	failing := &countingDestination{name: "bad", err: errors.New("send failed")}
	ok := newDest("good", nil)
	var observed []string

	group := NewGroup()
	group.Add(To(failing).Named("bad").Where("a", 1))
	group.Add(To(ok).Named("good").Where("a", 1)).End()
	group.OnRouted(func(_ context.Context, route *Route, _ *alert.Alert, _ error) {
		observed = append(observed, route.Name())
	})

	handled, err := group.Route(context.Background(), alertWith("a", 1))
	assert.True(t, handled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send failed")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, []string{"bad", "good"}, observed)
}

func TestFanoutSendsToAll(t *testing.T) {
	t.Parallel()

	first := newDest("first", nil)
	second := &countingDestination{name: "second"}
	fanout := NewFanout(first, second)

	handled, err := fanout.Route(context.Background(), alertWith())
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)

	handled, err = NewFanout(second).Route(context.Background(), alertWith())
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestParseActionAndLogic(t *testing.T) {
	t.Parallel()

	action, err := ParseAction("Continue")
	require.NoError(t, err)
	assert.Equal(t, Continue, action)
	_, err = ParseAction("skip")
	assert.Error(t, err)

	logic, err := ParseLogic("or")
	require.NoError(t, err)
	assert.Equal(t, Or, logic)
}
