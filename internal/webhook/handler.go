package webhook

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"tour_portal_backend/internal/leads/callevents"
	"tour_portal_backend/internal/leads/domain"
	"tour_portal_backend/platform/httpkit"
	"tour_portal_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Ingestor merges a call status callback into its lead.
type Ingestor interface {
	Ingest(ctx context.Context, ev callevents.CallEvent) callevents.Outcome
}

// Handler handles call provider webhooks.
type Handler struct {
	ingestor Ingestor
	log      *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(ingestor Ingestor, log *logger.Logger) *Handler {
	return &Handler{ingestor: ingestor, log: log}
}

// CallStatusRequest is a status callback. Providers post either our field
// names or their own (CallSid, CallStatus, CallDuration).
type CallStatusRequest struct {
	LeadID          string `json:"leadId" form:"leadId"`
	Role            string `json:"role" form:"role"`
	CallRef         string `json:"callRef" form:"callRef"`
	CallSid         string `json:"CallSid" form:"CallSid"`
	Status          string `json:"status" form:"status"`
	CallStatus      string `json:"CallStatus" form:"CallStatus"`
	DurationSeconds *int   `json:"durationSeconds" form:"durationSeconds"`
	CallDuration    string `json:"CallDuration" form:"CallDuration"`
}

type receivedResponse struct {
	Received bool `json:"received"`
}

// HandleCallStatus ingests a call status callback.
// POST /api/v1/webhooks/calls
// The provider is always acknowledged; unusable callbacks are logged and dropped.
func (h *Handler) HandleCallStatus(c *gin.Context) {
	log := h.log.WithContext(c.Request.Context())

	var req CallStatusRequest
	if err := c.ShouldBind(&req); err != nil {
		log.Warn("call webhook body could not be parsed", "error", err)
		acknowledge(c)
		return
	}

	ev, ok := toCallEvent(req, c.Query("leadId"), c.Query("role"))
	if !ok {
		log.Warn("call webhook missing lead or role", "leadId", req.LeadID, "role", req.Role)
		acknowledge(c)
		return
	}

	outcome := h.ingestor.Ingest(c.Request.Context(), ev)
	log.Debug("call webhook processed", "leadId", ev.LeadID, "role", ev.Role, "status", ev.ProviderStatus, "outcome", outcome)
	acknowledge(c)
}

func acknowledge(c *gin.Context) {
	httpkit.JSON(c, http.StatusOK, receivedResponse{Received: true})
}

// toCallEvent merges body and query values; the body wins when both are set.
func toCallEvent(req CallStatusRequest, queryLeadID, queryRole string) (callevents.CallEvent, bool) {
	leadID, err := uuid.Parse(firstNonEmpty(req.LeadID, queryLeadID))
	if err != nil {
		return callevents.CallEvent{}, false
	}
	role, ok := domain.ParseCallRole(firstNonEmpty(req.Role, queryRole))
	if !ok {
		return callevents.CallEvent{}, false
	}

	duration := req.DurationSeconds
	if duration == nil && req.CallDuration != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(req.CallDuration)); err == nil {
			duration = &secs
		}
	}

	return callevents.CallEvent{
		LeadID:          leadID,
		CallRef:         firstNonEmpty(req.CallRef, req.CallSid),
		Role:            role,
		ProviderStatus:  firstNonEmpty(req.Status, req.CallStatus),
		DurationSeconds: duration,
	}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
