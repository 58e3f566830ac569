package models

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a session. Values are persisted as-is.
type Status int16

// Status constants
const (
	StatusCreated   Status = 0
	StatusEnded     Status = 1
	StatusAbandoned Status = 2
	StatusPaused    Status = 3
)

var statusNames = map[Status]string{
	StatusCreated:   "created",
	StatusEnded:     "ended",
	StatusAbandoned: "abandoned",
	StatusPaused:    "paused",
}

// String returns the lowercase status name
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int16(s))
}

// IsValid checks if the status is a known value
func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// Live reports whether a session in this status still counts as the player's active game
func (s Status) Live() bool {
	return s == StatusCreated || s == StatusPaused
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusAbandoned
}

// MarshalJSON encodes the status by name
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for status, n := range statusNames {
		if n == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown session status %q", name)
}
