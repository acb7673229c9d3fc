package processor

import (
	"log/slog"
	"time"

	"alertmanager/internal/alert"
)

// Event names emitted by Processor.
const (
	EventAlertNew      = "alert.new"
	EventAlertUpdated  = "alert.updated"
	EventAlertExpired  = "alert.expired"
	EventAlertDeleted  = "alert.deleted"
	EventQuiesceStart  = "quiesce.start"
	EventQuiesceEnd    = "quiesce.end"
	EventError         = "error"
	EventProcessPassed = "process.pass"
)

// Event is one observable processor occurrence.
// Params: event name, affected alert (may be nil), previous state for updates,
// quiesce/pass duration and error for error events.
type Event struct {
	Name     string
	Alert    *alert.Alert
	Previous alert.State
	Duration time.Duration
	Err      error
}

// Observer receives processor events; implementations must not block.
type Observer interface {
	Event(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// Event calls f.
func (f ObserverFunc) Event(ev Event) {
	f(ev)
}

// Observers fans one event out to every observer in order.
type Observers []Observer

// Event forwards ev to all non-nil observers.
func (o Observers) Event(ev Event) {
	for _, observer := range o {
		if observer != nil {
			observer.Event(ev)
		}
	}
}

// LogObserver writes processor events into structured log.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates logging observer.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// Event logs ev with level chosen by event name.
func (o *LogObserver) Event(ev Event) {
	attrs := make([]any, 0, 8)
	if ev.Alert != nil {
		attrs = append(attrs, "alert", ev.Alert.Name(), "state", string(ev.Alert.State()))
	}
	switch ev.Name {
	case EventError:
		if ev.Err != nil {
			attrs = append(attrs, "error", ev.Err.Error())
		}
		o.logger.Error("processor error", attrs...)
	case EventAlertUpdated:
		attrs = append(attrs, "previous", string(ev.Previous))
		o.logger.Debug("alert updated", attrs...)
	case EventAlertNew:
		o.logger.Debug("alert added", attrs...)
	case EventAlertExpired:
		o.logger.Info("alert expired", attrs...)
	case EventAlertDeleted:
		o.logger.Info("alert removed", attrs...)
	case EventQuiesceStart:
		o.logger.Warn("routing quiesced", "duration", ev.Duration.String())
	case EventQuiesceEnd:
		o.logger.Warn("routing resumed")
	case EventProcessPassed:
		o.logger.Debug("process pass finished", "duration", ev.Duration.String())
	}
}
