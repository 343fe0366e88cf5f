// Package errtrack reports unexpected errors to Sentry.
// With an empty DSN every call is a no-op.
package errtrack

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/opensource-finance/compenso/internal/domain"
)

// Init configures the Sentry client. Failures are logged, never fatal.
func Init(cfg domain.SentryConfig) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		TracesSampleRate: 0.2,
		EnableTracing:    cfg.DSN != "",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			// Strip user data from events.
			event.User = sentry.User{}
			return event
		},
	})
	if err != nil {
		slog.Warn("sentry init failed", "error", err)
		return
	}
	if cfg.DSN == "" {
		slog.Info("sentry disabled: no DSN configured")
	} else {
		slog.Info("sentry initialized", "environment", cfg.Environment)
	}
}

// Flush waits for buffered events to be sent.
func Flush() { sentry.Flush(2 * time.Second) }

// CaptureError reports err with tags attached.
func CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := hubFrom(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}

// RecoverRequest reports a panic recovered while serving r.
func RecoverRequest(r *http.Request, recovered any) {
	hub := hubFrom(r.Context())
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("endpoint", r.URL.Path)
		scope.SetTag("method", r.Method)
		scope.SetLevel(sentry.LevelFatal)
		hub.RecoverWithContext(r.Context(), recovered)
	})
}

func hubFrom(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub().Clone()
}
