package controllers

import (
	"context"
	"net/http"

	"github.com/avelarsoto/tianguis-backend/api/responses"
	"github.com/avelarsoto/tianguis-backend/pkg/config"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
)

// Dependency is one backing service probed by the readiness check.
type Dependency struct {
	Name   string
	Pinger interface {
		Ping(ctx context.Context) error
	}
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tianguis-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every backing dependency answers.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps ...Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tianguis-Env", cfg.App.Env)
		for _, dep := range deps {
			if dep.Pinger == nil {
				continue
			}
			if err := dep.Pinger.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, dep.Name+" unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
