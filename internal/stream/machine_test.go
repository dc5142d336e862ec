package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"piezo-stream/internal/models"
)

func kinds(effects []Effect) []EffectKind {
	out := make([]EffectKind, 0, len(effects))
	for _, e := range effects {
		out = append(out, e.Kind)
	}
	return out
}

func countKind(effects []Effect, kind EffectKind) int {
	n := 0
	for _, e := range effects {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestTransition_Table(t *testing.T) {
	closedErr := errors.New("connection reset")
	tests := []struct {
		name    string
		state   models.ConnectionState
		event   Event
		next    models.ConnectionState
		effects []EffectKind
	}{
		{"start from disconnected", models.Disconnected, Event{Kind: EventStart}, models.Connecting, []EffectKind{EffectNotifyState, EffectDial}},
		{"start while connected", models.Connected, Event{Kind: EventStart}, models.Connected, []EffectKind{}},
		{"opened while connecting", models.Connecting, Event{Kind: EventOpened}, models.Connected, []EffectKind{EffectNotifyState}},
		{"opened while connected", models.Connected, Event{Kind: EventOpened}, models.Connected, []EffectKind{EffectCloseChannel}},
		{"message while connected", models.Connected, Event{Kind: EventMessage, Payload: []byte("{}")}, models.Connected, []EffectKind{EffectIngest}},
		{"message while connecting", models.Connecting, Event{Kind: EventMessage}, models.Connecting, []EffectKind{}},
		{"closed while connected", models.Connected, Event{Kind: EventClosed, Err: closedErr}, models.Disconnected, []EffectKind{EffectCloseChannel, EffectNotifyState, EffectScheduleReconnect}},
		{"closed while connecting", models.Connecting, Event{Kind: EventClosed, Err: closedErr}, models.Disconnected, []EffectKind{EffectCloseChannel, EffectNotifyState, EffectScheduleReconnect}},
		{"closed while disconnected", models.Disconnected, Event{Kind: EventClosed}, models.Disconnected, []EffectKind{}},
		{"reconnect due", models.Disconnected, Event{Kind: EventReconnectDue}, models.Connecting, []EffectKind{EffectNotifyState, EffectDial}},
		{"stale reconnect", models.Connected, Event{Kind: EventReconnectDue}, models.Connected, []EffectKind{}},
		{"shutdown connected", models.Connected, Event{Kind: EventShutdown}, models.Disconnected, []EffectKind{EffectCloseChannel, EffectNotifyState, EffectStop}},
		{"shutdown disconnected", models.Disconnected, Event{Kind: EventShutdown}, models.Disconnected, []EffectKind{EffectCloseChannel, EffectStop}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, effects := Transition(tt.state, tt.event)
			assert.Equal(t, tt.next, next)
			assert.Equal(t, tt.effects, kinds(effects))
		})
	}
}

func TestTransition_EachCloseSchedulesOneReconnect(t *testing.T) {
	state := models.Disconnected
	scheduled := 0

	for i := 0; i < 5; i++ {
		trigger := Event{Kind: EventReconnectDue}
		if i == 0 {
			trigger = Event{Kind: EventStart}
		}
		var effects []Effect
		state, effects = Transition(state, trigger)
		assert.Equal(t, 1, countKind(effects, EffectDial))

		state, _ = Transition(state, Event{Kind: EventOpened})
		state, effects = Transition(state, Event{Kind: EventClosed})
		scheduled += countKind(effects, EffectScheduleReconnect)

		// Повторное закрытие того же канала не планирует второе переподключение
		state, effects = Transition(state, Event{Kind: EventClosed})
		scheduled += countKind(effects, EffectScheduleReconnect)
	}

	assert.Equal(t, 5, scheduled)
	assert.Equal(t, models.Disconnected, state)
}

func TestTransition_IngestCarriesPayload(t *testing.T) {
	payload := []byte(`{"voltage":1}`)
	_, effects := Transition(models.Connected, Event{Kind: EventMessage, Payload: payload})

	if assert.Len(t, effects, 1) {
		assert.Equal(t, payload, effects[0].Payload)
	}
}

func TestTransition_NotifyCarriesState(t *testing.T) {
	_, effects := Transition(models.Connecting, Event{Kind: EventOpened})

	if assert.Len(t, effects, 1) {
		assert.Equal(t, models.Connected, effects[0].State)
	}
}
