package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSubscribeReceivesEventsUntilUnsubscribed(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var got []string
	unsubscribe := bus.Subscribe(func(evt Event) { got = append(got, evt.Type) })

	bus.Publish(Event{Type: RefundLedgerChanged})
	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Type: DayClosed})

	assert.Equal(t, []string{RefundLedgerChanged}, got)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	bus.Subscribe(func(Event) { panic("render failed") })
	bus.Subscribe(func(Event) { calls++ })

	bus.Publish(Event{Type: VerificationChanged})

	assert.Equal(t, 1, calls)
}
