package main

import (
	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/events"
	"jobscout-engine/internal/orchestrator"
)

// progressHooks relays per-source lifecycle to SSE subscribers.
func progressHooks(hub *events.Hub) orchestrator.Instrument {
	return orchestrator.Instrument{
		OnSourceStart: func(source string) {
			hub.Emit("", events.TypeSourceStarted, map[string]any{"source": source})
		},
		OnSourceDone: func(out domain.SourceOutcome) {
			hub.Emit("", events.TypeSourceFinished, out)
		},
	}
}
