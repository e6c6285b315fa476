package main

import (
	"log/slog"
	"time"

	"github.com/jllopis/nerve/pkg/agent/events"
)

// eventPrinter logs run events and remembers how the task ended.
type eventPrinter struct {
	logger     *slog.Logger
	impossible bool
	reason     string
}

func newEventPrinter(logger *slog.Logger) *eventPrinter {
	return &eventPrinter{logger: logger}
}

func (p *eventPrinter) handle(ev events.Event) {
	switch ev.Type {
	case events.TypeThinking:
		p.logger.Info("thinking", slog.String("text", ev.String("text")))
	case events.TypeSleeping:
		p.logger.Info("sleeping", slog.Any("seconds", ev.Payload["seconds"]))
	case events.TypeStorageUpdate:
		p.logger.Debug("storage updated",
			slog.String("storage", ev.String("storage")),
			slog.String("kind", ev.String("kind")),
			slog.String("key", ev.String("key")),
			slog.String("new", ev.String("new")),
		)
	case events.TypeMetricsUpdate:
		p.logger.Debug("metrics", slog.Any("metrics", ev.Payload["metrics"]))
	case events.TypeEmptyResponse:
		p.logger.Warn("empty response")
	case events.TypeInvalidResponse:
		p.logger.Warn("invalid response",
			slog.String("response", truncate(ev.String("response"), 200)),
			slog.String("error", ev.String("error")),
		)
	case events.TypeInvalidAction:
		p.logger.Warn("invalid action", slog.String("action", ev.String("action")), slog.String("error", ev.String("error")))
	case events.TypeActionTimeout:
		p.logger.Warn("action timed out", slog.String("action", ev.String("action")), slog.Duration("elapsed", elapsed(ev)))
	case events.TypeActionExecuted:
		if msg := ev.String("error"); msg != "" {
			p.logger.Error("action failed", slog.String("action", ev.String("action")), slog.String("error", msg))
			return
		}
		p.logger.Info("action executed",
			slog.String("action", ev.String("action")),
			slog.Duration("elapsed", elapsed(ev)),
			slog.String("result", truncate(ev.String("result"), 200)),
		)
	case events.TypeTaskComplete:
		p.impossible, _ = ev.Payload["impossible"].(bool)
		p.reason = ev.String("reason")
		if p.impossible {
			p.logger.Warn("task impossible", slog.String("reason", p.reason))
			return
		}
		p.logger.Info("task complete", slog.String("reason", p.reason))
	default:
		p.logger.Debug("event", slog.String("type", string(ev.Type)))
	}
}

func elapsed(ev events.Event) time.Duration {
	d, _ := ev.Payload["elapsed"].(time.Duration)
	return d
}
