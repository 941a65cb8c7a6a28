package desim_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-desim"
)

type blockingTargetEntity struct {
	replyDelay desim.VirtualDuration
}

func (e *blockingTargetEntity) Invoke(ctx *desim.InvokeContext, eventID desim.EventID, _ []desim.Value) (desim.Value, error) {
	if eventID == 0 {
		if e.replyDelay > 0 {
			if err := ctx.Sleep(e.replyDelay); err != nil {
				return nil, err
			}
		}
		return "late", nil
	}
	return nil, &desim.UnknownEventError{Event: eventID}
}

func (e *blockingTargetEntity) SignatureFor(eventID desim.EventID) string {
	if eventID == 0 {
		return "slow()"
	}
	return ""
}

type timeoutCallerEntity struct {
	target desim.EntityID
	err    error
}

func (e *timeoutCallerEntity) Invoke(ctx *desim.InvokeContext, eventID desim.EventID, _ []desim.Value) (desim.Value, error) {
	if eventID == 0 {
		_, err := ctx.PostContinuingWithTimeout(3, e.target, 0)
		e.err = err
		return nil, nil
	}
	return nil, &desim.UnknownEventError{Event: eventID}
}

func (e *timeoutCallerEntity) SignatureFor(eventID desim.EventID) string {
	if eventID == 0 {
		return "callWithTimeout()"
	}
	return ""
}

func TestPostContinuingWithTimeoutFiresBeforeReply(t *testing.T) {
	c := desim.NewSimulationController()
	targetID := c.Register(&blockingTargetEntity{replyDelay: 10}, "slow")
	caller := &timeoutCallerEntity{target: targetID}
	callerID := c.Register(caller, "caller")

	_, err := c.Post(callerID, 0)
	require.NoError(t, err)
	c.Run()

	require.Error(t, caller.err)
	var timeoutErr *desim.TimeoutError
	assert.True(t, errors.As(caller.err, &timeoutErr))
}

func TestPostContinuingWithTimeoutLosesRaceToRealReply(t *testing.T) {
	c := desim.NewSimulationController()
	targetID := c.Register(&blockingTargetEntity{replyDelay: 1}, "fast")
	caller := &timeoutCallerEntity{target: targetID}
	callerID := c.Register(caller, "caller")

	_, err := c.Post(callerID, 0)
	require.NoError(t, err)
	c.Run()

	require.NoError(t, caller.err)
}

func TestPostContinuingWithTimeoutDebugModeLogsCreationStack(t *testing.T) {
	var lines []map[string]any
	logger := desim.LoggerFunc(func(level desim.LogLevel, msg string, fields map[string]any) {
		if msg == "post_continuing timed out" {
			lines = append(lines, fields)
		}
	})

	c := desim.NewSimulationController(desim.WithDebugMode(true), desim.WithLogger(logger))
	targetID := c.Register(&blockingTargetEntity{replyDelay: 10}, "slow")
	caller := &timeoutCallerEntity{target: targetID}
	callerID := c.Register(caller, "caller")

	_, err := c.Post(callerID, 0)
	require.NoError(t, err)
	c.Run()

	require.Len(t, lines, 1)
	stack, _ := lines[0]["creation_stack"].(string)
	assert.NotEmpty(t, stack)
}

func TestSimulationControllerRunUntilStopsAtDeadlineThenResumes(t *testing.T) {
	c := desim.NewSimulationController()
	id := c.Register(&blockingTargetEntity{}, "E")

	_, err := c.PostAfter(5, id, 0)
	require.NoError(t, err)
	_, err = c.PostAfter(15, id, 0)
	require.NoError(t, err)

	dispatched := c.RunUntil(10)
	assert.EqualValues(t, 1, dispatched)
	assert.Equal(t, desim.VirtualTime(5), c.Now())

	dispatched = c.RunUntil(20)
	assert.EqualValues(t, 1, dispatched)
	assert.Equal(t, desim.VirtualTime(15), c.Now())
}

func TestSteppingControllerStepUntilStopsAtDeadline(t *testing.T) {
	c := desim.NewSteppingController()
	id := c.Register(echoEntity{}, "E")

	_, err := c.PostAfter(1, id, 0, 1)
	require.NoError(t, err)
	_, err = c.PostAfter(2, id, 0, 2)
	require.NoError(t, err)
	_, err = c.PostAfter(100, id, 0, 3)
	require.NoError(t, err)

	dispatched := c.StepUntil(2)
	assert.EqualValues(t, 2, dispatched)
	assert.Equal(t, desim.VirtualTime(2), c.Now())
}

// selfReportingEntity records ctx.Self() as seen during its own Invoke,
// so a test can assert it matches the EntityID Register returned.
type selfReportingEntity struct {
	seen desim.EntityID
}

func (e *selfReportingEntity) Invoke(ctx *desim.InvokeContext, eventID desim.EventID, _ []desim.Value) (desim.Value, error) {
	if eventID == 0 {
		e.seen = ctx.Self()
		return nil, nil
	}
	return nil, &desim.UnknownEventError{Event: eventID}
}

func (e *selfReportingEntity) SignatureFor(eventID desim.EventID) string {
	if eventID == 0 {
		return "whoami()"
	}
	return ""
}

func TestInvokeContextSelfMatchesRegisteredID(t *testing.T) {
	c := desim.NewSimulationController()
	e := &selfReportingEntity{}
	id := c.Register(e, "E")

	_, err := c.Post(id, 0)
	require.NoError(t, err)
	c.Run()

	assert.Equal(t, id, e.seen)
}

func TestEventHandleValid(t *testing.T) {
	c := desim.NewSimulationController()
	id := c.Register(echoEntity{}, "E")

	var zero desim.EventHandle
	assert.False(t, zero.Valid())

	h, err := c.PostAfter(5, id, 0, 1)
	require.NoError(t, err)
	assert.True(t, h.Valid())

	assert.True(t, c.Cancel(h))
	assert.True(t, h.Valid(), "cancelling doesn't invalidate the handle itself")
}

func TestEntitiesReturnsRegistrationOrder(t *testing.T) {
	c := desim.NewSimulationController()
	aID := c.Register(echoEntity{}, "A")
	bID := c.Register(echoEntity{}, "B")

	assert.Equal(t, []desim.EntityID{aID, bID}, c.Entities())
	assert.Equal(t, "A", c.Name(aID))
	assert.Equal(t, "B", c.Name(bID))
	assert.Equal(t, "", c.Name(desim.EntityID(999)))
}

func TestSteppingControllerDispatchesOneEventPerStep(t *testing.T) {
	c := desim.NewSteppingController()
	id := c.Register(echoEntity{}, "E")

	_, err := c.Post(id, 0, 1)
	require.NoError(t, err)
	_, err = c.Post(id, 0, 2)
	require.NoError(t, err)

	assert.True(t, c.Step())
	assert.EqualValues(t, 1, c.TotalEvents())
	assert.True(t, c.Step())
	assert.EqualValues(t, 2, c.TotalEvents())
	assert.False(t, c.Step())
}

func TestReportSnapshotsSpectrumAndTotals(t *testing.T) {
	c := desim.NewSimulationController(desim.WithSpectrumTracking(), desim.WithName("demo"))
	id := c.Register(echoEntity{}, "E")
	_, err := c.Post(id, 0, 1)
	require.NoError(t, err)

	c.Run()
	report := c.Report()
	assert.Equal(t, "demo", report.Name)
	assert.EqualValues(t, 1, report.TotalEvents)
	require.Len(t, report.Spectrum, 1)
	assert.Equal(t, "stopped", report.State)
}

func TestReportVirtualAndWallClockTimestamps(t *testing.T) {
	c := desim.NewSimulationController()

	before := c.Report()
	assert.Equal(t, desim.VirtualTime(0), before.VirtualStart)
	assert.Equal(t, desim.VirtualTime(0), before.VirtualEnd)
	assert.EqualValues(t, 0, before.SimulationStartMS)
	assert.EqualValues(t, 0, before.SimulationEndMS)

	id := c.Register(echoEntity{}, "E")
	_, err := c.Post(id, 0, 1)
	require.NoError(t, err)
	_, err = c.PostAfter(5, id, 0, 2)
	require.NoError(t, err)

	c.Run()
	report := c.Report()
	assert.Equal(t, desim.VirtualTime(0), report.VirtualStart, "S1 requires virtual_end=0 for a single no-delay dispatch; here virtual_start is from the first (delay 0) dispatch")
	assert.Equal(t, desim.VirtualTime(5), report.VirtualEnd)
	assert.NotZero(t, report.SimulationStartMS)
	assert.NotZero(t, report.SimulationEndMS)
	assert.GreaterOrEqual(t, report.SimulationEndMS, report.SimulationStartMS)
}

func TestRealTimeControllerDispatchesAtApproximateWallClockRate(t *testing.T) {
	c := desim.NewRealTimeController(desim.WithRealTimeRate(1000))
	id := c.Register(echoEntity{}, "E")
	done := make(chan struct{})
	_, err := c.Post(id, 0, 7)
	require.NoError(t, err)

	c.Start()
	go func() {
		for c.TotalEvents() == 0 {
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for real-time dispatch")
	}
	c.Stop()
	assert.EqualValues(t, 1, c.TotalEvents())
}
