package desim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-desim"
)

// panickingEntity panics whenever invoked, used to exercise runInvoke's
// panic recovery and the reportUserError fallback path (a plain Post
// has no caller to deliver the error to).
type panickingEntity struct{}

func (panickingEntity) Invoke(_ *desim.InvokeContext, _ desim.EventID, _ []desim.Value) (desim.Value, error) {
	panic("entity exploded")
}

func (panickingEntity) SignatureFor(eventID desim.EventID) string {
	if eventID == 0 {
		return "boom()"
	}
	return ""
}

func TestPanicInInvokeBecomesUserErrorViaOnUserError(t *testing.T) {
	var gotEntity desim.EntityID
	var gotEvent desim.EventID
	var gotErr error

	c := desim.NewSimulationController(
		desim.WithLogger(desim.DiscardLogger),
		desim.WithOnUserError(func(entity desim.EntityID, eventID desim.EventID, err error) {
			gotEntity = entity
			gotEvent = eventID
			gotErr = err
		}),
	)
	id := c.Register(panickingEntity{}, "X")

	_, err := c.Post(id, 0)
	require.NoError(t, err)
	dispatched := c.Run()

	assert.EqualValues(t, 1, dispatched)
	assert.Equal(t, id, gotEntity)
	assert.EqualValues(t, 0, gotEvent)
	require.Error(t, gotErr)
	var panicErr *desim.PanicError
	require.ErrorAs(t, gotErr, &panicErr)
	assert.Equal(t, "entity exploded", panicErr.Value)
}

// TestPanicInInvokeWithoutHookUsesDiscardLogger exercises the default
// reportUserError path (no WithOnUserError hook) with DiscardLogger, so
// the panic is swallowed without any stderr noise and without crashing
// the run.
func TestPanicInInvokeWithoutHookUsesDiscardLogger(t *testing.T) {
	c := desim.NewSimulationController(desim.WithLogger(desim.DiscardLogger))
	id := c.Register(panickingEntity{}, "X")

	_, err := c.Post(id, 0)
	require.NoError(t, err)

	assert.NotPanics(t, func() { c.Run() })
	assert.EqualValues(t, 1, c.TotalEvents())
}

func TestPanicInInvokePropagatesThroughPostContinuing(t *testing.T) {
	c := desim.NewSimulationController()
	bID := c.Register(panickingEntity{}, "B")
	a := &catchingEntity{target: bID}
	aID := c.Register(a, "A")

	_, err := c.Post(aID, 0)
	require.NoError(t, err)
	c.Run()

	assert.Contains(t, a.recorded, "entity exploded")
}
