package telemetry

import (
	"smc-signal-engine/internal/events"

	"github.com/rs/zerolog"
)

// levelFor maps event types onto log levels. Rejections and skips are routine
// and stay at debug so a quiet market does not flood the log.
func levelFor(t events.EventType) zerolog.Level {
	switch t {
	case events.EventError:
		return zerolog.ErrorLevel
	case events.EventSignalGenerated, events.EventBiasChanged,
		events.EventEngineStarted, events.EventEngineStopped:
		return zerolog.InfoLevel
	case events.EventSignalRejected, events.EventCycleSkipped:
		return zerolog.DebugLevel
	}
	return zerolog.DebugLevel
}

// AttachSink subscribes a structured-log sink to every bus event, so the full
// event stream lands in the log alongside component-local logging.
func AttachSink(bus *events.EventBus, logger zerolog.Logger) {
	sink := logger.With().Str("component", "events").Logger()
	bus.SubscribeAll(func(e events.Event) {
		evt := sink.WithLevel(levelFor(e.Type)).
			Str("event", string(e.Type)).
			Time("at", e.Timestamp)
		for k, v := range e.Data {
			evt = evt.Interface(k, v)
		}
		evt.Msg("event")
	})
}
