// Package stream поддерживает постоянное соединение с push-каналом устройства
// Переходы состояний вычисляются чистой функцией Transition, побочные эффекты выполняет Client
package stream

import "piezo-stream/internal/models"

// EventKind тип события канала
type EventKind int

const (
	EventStart EventKind = iota
	EventOpened
	EventMessage
	EventClosed
	EventReconnectDue
	EventShutdown
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	case EventReconnectDue:
		return "reconnect_due"
	case EventShutdown:
		return "shutdown"
	}
	return "unknown"
}

// Event событие, поступающее в автомат
type Event struct {
	Kind    EventKind
	Payload []byte
	Err     error
}

// EffectKind тип побочного эффекта
type EffectKind int

const (
	EffectDial EffectKind = iota
	EffectScheduleReconnect
	EffectIngest
	EffectNotifyState
	EffectCloseChannel
	EffectStop
)

// Effect побочный эффект, который должен выполнить исполнитель
type Effect struct {
	Kind    EffectKind
	Payload []byte
	State   models.ConnectionState
}

// Transition вычисляет следующее состояние и эффекты для пары (состояние, событие)
func Transition(state models.ConnectionState, ev Event) (models.ConnectionState, []Effect) {
	switch ev.Kind {
	case EventStart:
		if state == models.Disconnected {
			return models.Connecting, []Effect{notify(models.Connecting), {Kind: EffectDial}}
		}

	case EventReconnectDue:
		if state == models.Disconnected {
			return models.Connecting, []Effect{notify(models.Connecting), {Kind: EffectDial}}
		}

	case EventOpened:
		if state == models.Connecting {
			return models.Connected, []Effect{notify(models.Connected)}
		}
		// Открытие вне Connecting: второй канал не допускается
		return state, []Effect{{Kind: EffectCloseChannel}}

	case EventMessage:
		if state == models.Connected {
			return state, []Effect{{Kind: EffectIngest, Payload: ev.Payload}}
		}

	case EventClosed:
		if state == models.Connected || state == models.Connecting {
			return models.Disconnected, []Effect{
				{Kind: EffectCloseChannel},
				notify(models.Disconnected),
				{Kind: EffectScheduleReconnect},
			}
		}

	case EventShutdown:
		effects := []Effect{{Kind: EffectCloseChannel}}
		if state != models.Disconnected {
			effects = append(effects, notify(models.Disconnected))
		}
		return models.Disconnected, append(effects, Effect{Kind: EffectStop})
	}

	return state, nil
}

func notify(state models.ConnectionState) Effect {
	return Effect{Kind: EffectNotifyState, State: state}
}
