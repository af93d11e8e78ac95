package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/laundrytrack-backend/api/responses"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
)

const readinessTimeout = 3 * time.Second

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-LaundryTrack-Env", env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency concurrently and reports each result.
// Any failure turns the probe into DEPENDENCY_ERROR.
func HealthReady(env string, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-LaundryTrack-Env", env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		results := make([]error, len(names))
		var group errgroup.Group
		for i, name := range names {
			group.Go(func() error {
				results[i] = deps[name].Ping(ctx)
				return nil
			})
		}
		_ = group.Wait()

		checks := make(map[string]string, len(names))
		var firstErr error
		for i, name := range names {
			if results[i] != nil {
				checks[name] = "down"
				if firstErr == nil {
					firstErr = pkgerrors.Wrap(pkgerrors.CodeDependency, results[i], name+" unavailable")
				}
				continue
			}
			checks[name] = "up"
		}

		if firstErr != nil {
			typed := pkgerrors.As(firstErr).WithDetails(checks)
			responses.WriteError(r.Context(), logg, w, typed)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
