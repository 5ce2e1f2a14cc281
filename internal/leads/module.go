// Package leads provides the tour lead bounded context module.
// This file wires the store, the confirmation orchestrator, the call event
// ingestor, the rotation sweep and the HTTP handler together.
package leads

import (
	"errors"

	"tour_portal_backend/internal/events"
	apphttp "tour_portal_backend/internal/http"
	"tour_portal_backend/internal/leads/callevents"
	"tour_portal_backend/internal/leads/confirmation"
	"tour_portal_backend/internal/leads/eligibility"
	"tour_portal_backend/internal/leads/handler"
	"tour_portal_backend/internal/leads/management"
	"tour_portal_backend/internal/leads/ports"
	"tour_portal_backend/internal/leads/repository"
	"tour_portal_backend/internal/leads/rotation"
	"tour_portal_backend/platform/config"
	"tour_portal_backend/platform/logger"
	"tour_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config is the configuration the leads module reads.
type Config interface {
	config.ConfirmationConfig
	config.RotationConfig
}

// Deps are the collaborators owned by other modules.
type Deps struct {
	Directory ports.AgentDirectory
	Provider  ports.CallProvider
	Scheduler ports.Scheduler
	EventBus  events.Bus
}

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	repo         *repository.Repository
	handler      *handler.Handler
	management   *management.Service
	orchestrator *confirmation.Orchestrator
	ingestor     *callevents.Ingestor
	sweeper      *rotation.Sweeper
}

// NewModule creates and initializes the leads module with all its dependencies.
func NewModule(pool *pgxpool.Pool, deps Deps, val *validator.Validator, cfg Config, log *logger.Logger) (*Module, error) {
	if deps.Directory == nil || deps.Provider == nil || deps.Scheduler == nil || deps.EventBus == nil {
		return nil, errors.New("leads module requires a directory, call provider, scheduler and event bus")
	}

	repo := repository.New(pool)
	resolver := eligibility.New(deps.Directory)

	orchestrator := confirmation.New(repo, deps.Directory, deps.Provider, deps.Scheduler, deps.EventBus, log, confirmation.ConfigFrom(cfg))
	ingestor := callevents.New(repo, deps.EventBus, log)
	sweeper := rotation.NewSweeper(repo, resolver, deps.EventBus, log, rotation.ConfigFrom(cfg)).
		WithAgentCallArmer(orchestrator)

	mgmt := management.New(repo, deps.Directory, orchestrator, sweeper, deps.EventBus, log, cfg.GetExpiryWindow())

	return &Module{
		repo:         repo,
		handler:      handler.New(mgmt, val),
		management:   mgmt,
		orchestrator: orchestrator,
		ingestor:     ingestor,
		sweeper:      sweeper,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Repository returns the lead store.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// ManagementService returns the request-facing lead service.
func (m *Module) ManagementService() *management.Service {
	return m.management
}

// Orchestrator returns the confirmation orchestrator that the task worker drives.
func (m *Module) Orchestrator() *confirmation.Orchestrator {
	return m.orchestrator
}

// Ingestor returns the call event ingestor that the provider webhook feeds.
func (m *Module) Ingestor() *callevents.Ingestor {
	return m.ingestor
}

// Sweeper returns the rotation sweep run by the scheduler process.
func (m *Module) Sweeper() *rotation.Sweeper {
	return m.sweeper
}

// RegisterRoutes mounts the lead routes on the protected and admin groups.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leads := ctx.Protected.Group("/leads")
	m.handler.RegisterRoutes(leads, ctx.LeadCreationLimiter.RateLimit())
	m.handler.RegisterAdminRoutes(ctx.Admin.Group("/leads"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
