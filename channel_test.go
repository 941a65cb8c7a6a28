package desim_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-desim"
)

type closeSenderEntity struct {
	ch *desim.Channel[string]
}

func (e *closeSenderEntity) Invoke(ctx *desim.InvokeContext, eventID desim.EventID, _ []desim.Value) (desim.Value, error) {
	if eventID == 0 {
		e.ch.Close(ctx)
		return nil, nil
	}
	return nil, &desim.UnknownEventError{Event: eventID}
}

func (e *closeSenderEntity) SignatureFor(eventID desim.EventID) string {
	if eventID == 0 {
		return "close()"
	}
	return ""
}

type closeWaiterEntity struct {
	ch  *desim.Channel[string]
	err error
}

func (e *closeWaiterEntity) Invoke(ctx *desim.InvokeContext, eventID desim.EventID, _ []desim.Value) (desim.Value, error) {
	if eventID == 0 {
		_, err := e.ch.Receive(ctx)
		e.err = err
		return nil, nil
	}
	return nil, &desim.UnknownEventError{Event: eventID}
}

func (e *closeWaiterEntity) SignatureFor(eventID desim.EventID) string {
	if eventID == 0 {
		return "wait()"
	}
	return ""
}

func TestChannelCloseUnparksWaitingReceiver(t *testing.T) {
	c := desim.NewSimulationController()
	ch := desim.NewChannel[string]()

	waiter := &closeWaiterEntity{ch: ch}
	waiterID := c.Register(waiter, "waiter")
	closerID := c.Register(&closeSenderEntity{ch: ch}, "closer")

	_, err := c.Post(waiterID, 0)
	require.NoError(t, err)
	_, err = c.PostAfter(5, closerID, 0)
	require.NoError(t, err)

	c.Run()
	require.Error(t, waiter.err)
	assert.True(t, errors.Is(waiter.err, desim.ErrChannelClosed))
}

func TestChannelReceiveOnAlreadyClosedChannel(t *testing.T) {
	c := desim.NewSimulationController()
	ch := desim.NewChannel[string]()

	closerID := c.Register(&closeSenderEntity{ch: ch}, "closer")
	_, err := c.Post(closerID, 0)
	require.NoError(t, err)
	// RunUntil leaves the controller Paused, so the waiter can still be
	// posted; Run would stop it.
	c.RunUntil(0)

	waiter := &closeWaiterEntity{ch: ch}
	waiterID := c.Register(waiter, "waiter")
	_, err = c.Post(waiterID, 0)
	require.NoError(t, err)
	c.Run()

	require.Error(t, waiter.err)
	assert.True(t, errors.Is(waiter.err, desim.ErrChannelClosed))
}
