package model

import "time"

// EventType identifies what an Event describes.
type EventType string

const (
	EventUpdateEntity    EventType = "update_entity"
	EventImportEntity    EventType = "import_entity"
	EventImportCompleted EventType = "import_completed"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// IsValid checks whether the event type is a known value.
func (t EventType) IsValid() bool {
	switch t {
	case EventUpdateEntity, EventImportEntity, EventImportCompleted:
		return true
	}
	return false
}

// Event is a privacy-safe record of one entity change or import, in the
// shape the analytics sink expects. Events are built once and never modified.
type Event struct {
	Environment string     `json:"environment"`
	EntityName  string     `json:"entity_table_name"`
	EventType   EventType  `json:"event_type"`
	OccurredAt  time.Time  `json:"occurred_at"`
	UserID      string     `json:"user_id,omitempty"`
	RequestUUID string     `json:"request_uuid,omitempty"`
	Data        []DataPair `json:"data"`
}

// DataPair is one exported attribute. Value always holds at least one
// serialized scalar, even for scalar attributes.
type DataPair struct {
	Key   string   `json:"key"`
	Value []string `json:"value"`
}

// Lookup returns the values stored under key, if present.
func (e Event) Lookup(key string) ([]string, bool) {
	for _, p := range e.Data {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}
