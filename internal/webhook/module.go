// Package webhook receives call provider status callbacks.
package webhook

import (
	apphttp "tour_portal_backend/internal/http"
	"tour_portal_backend/platform/logger"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	secret  string
	log     *logger.Logger
}

// NewModule creates the webhook module. secret signs provider callbacks and may be empty.
func NewModule(ingestor Ingestor, secret string, log *logger.Logger) *Module {
	return &Module{
		handler: NewHandler(ingestor, log),
		secret:  secret,
		log:     log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.secret == "" {
		m.log.Warn("CALL_WEBHOOK_SECRET not set; call webhooks are not signature checked")
	}
	// Public: the provider authenticates with the body signature, not a JWT.
	ctx.V1.POST("/webhooks/calls", SignatureMiddleware(m.secret, m.log), m.handler.HandleCallStatus)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
