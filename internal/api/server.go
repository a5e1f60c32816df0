// Package api exposes the spawn engine as a small JSON HTTP API.
package api

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"github.com/rewired-gh/spawnoracle/internal/bosses"
	"github.com/rewired-gh/spawnoracle/internal/engine"
	"github.com/rewired-gh/spawnoracle/internal/models"
)

// Engine is the part of engine.Engine the API uses
type Engine interface {
	GetChance(ctx context.Context, name string) (models.SpawnEstimate, error)
	ChanceAll(ctx context.Context) ([]models.SpawnEstimate, []engine.EvaluationError, error)
	Bosses(ctx context.Context) ([]models.BossConfig, error)
	RecordKill(ctx context.Context, name string, at time.Time) (models.Appearance, error)
	RevertLastKill(ctx context.Context, name string) (models.Appearance, error)
	ConfigureBoss(ctx context.Context, name string, minDays, maxDays int) (models.BossConfig, error)
	PurgeBoss(ctx context.Context, name string) error
	LastAppearances(ctx context.Context, name string, n int) ([]models.Appearance, error)
	MarkChecked(ctx context.Context, name, checker string) error
	ParseKillTime(s string) (time.Time, error)
	Now() time.Time
	Precision() int
}

// NewRouter creates and configures the chi router with all middleware and routes.
func NewRouter(e Engine, rules bosses.CategoryRules, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	if len(corsOrigins) > 0 {
		c := corslib.New(corslib.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			ExposedHeaders:   []string{"X-Process-Time", "X-Request-Id"},
			AllowCredentials: false,
		})
		r.Use(c.Handler)
	}

	h := &handler{engine: e, rules: rules}

	// --- Routes ---
	r.Get("/healthz", h.health)

	r.Route("/bosses", func(r chi.Router) {
		r.Get("/", h.listBosses)
		r.Route("/{name}", func(r chi.Router) {
			r.Put("/", h.configureBoss)
			r.Delete("/", h.purgeBoss)
			r.Get("/chance", h.getChance)
			r.Get("/appearances", h.listAppearances)
			r.Post("/kills", h.recordKill)
			r.Delete("/kills/last", h.revertKill)
			r.Post("/checked", h.markChecked)
		})
	})

	return r
}
