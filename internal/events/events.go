// Package events carries progress notifications to SSE subscribers.
package events

import (
	"encoding/json"
	"time"
)

// Version is bumped whenever an event payload changes shape.
const Version = 1

const (
	TypePing           = "ping"
	TypeSearchStarted  = "search_started"
	TypeSourceStarted  = "source_started"
	TypeSourceFinished = "source_finished"
	TypeSearchFinished = "search_finished"
	TypeCacheCleared   = "cache_cleared"
)

type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// New builds an event. data that cannot be marshalled is left out.
func New(reqID, typ string, data any) Event {
	e := Event{
		Type:      typ,
		Version:   Version,
		At:        time.Now().UTC(),
		RequestID: reqID,
	}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			e.Data = b
		}
	}
	return e
}
