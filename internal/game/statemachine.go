package game

import "github.com/omega-realm/bossdrop/internal/models"

// Event is a session lifecycle trigger.
type Event string

const (
	EventPause     Event = "pause"
	EventUnpause   Event = "unpause"
	EventEnd       Event = "end"
	EventExpire    Event = "expire"
	EventSupersede Event = "supersede"
)

type transitionKey struct {
	from  models.Status
	event Event
}

// Machine is the explicit transition table for session statuses.
type Machine struct {
	table map[transitionKey]models.Status
}

// NewMachine builds the transition table. allowEndFromPaused enables Paused -> Ended.
func NewMachine(allowEndFromPaused bool) *Machine {
	table := map[transitionKey]models.Status{
		{models.StatusCreated, EventPause}:     models.StatusPaused,
		{models.StatusPaused, EventUnpause}:    models.StatusCreated,
		{models.StatusCreated, EventEnd}:       models.StatusEnded,
		{models.StatusCreated, EventExpire}:    models.StatusAbandoned,
		{models.StatusPaused, EventExpire}:     models.StatusAbandoned,
		{models.StatusCreated, EventSupersede}: models.StatusAbandoned,
		{models.StatusPaused, EventSupersede}:  models.StatusAbandoned,
	}
	if allowEndFromPaused {
		table[transitionKey{models.StatusPaused, EventEnd}] = models.StatusEnded
	}
	return &Machine{table: table}
}

// Next returns the status reached from `from` on `event`, or a state-conflict error.
func (m *Machine) Next(from models.Status, event Event) (models.Status, error) {
	to, ok := m.table[transitionKey{from, event}]
	if !ok {
		return from, StateConflict("cannot %s a %s session", event, from)
	}
	return to, nil
}

// Allows reports whether the transition exists.
func (m *Machine) Allows(from models.Status, event Event) bool {
	_, ok := m.table[transitionKey{from, event}]
	return ok
}
