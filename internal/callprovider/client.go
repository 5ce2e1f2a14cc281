// Package callprovider places confirmation calls and sends SMS through the
// voice provider's HTTP API.
package callprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tour_portal_backend/internal/leads/ports"
	"tour_portal_backend/platform/apperr"
	"tour_portal_backend/platform/config"
	"tour_portal_backend/platform/logger"
	"tour_portal_backend/platform/phone"

	"github.com/sony/gobreaker/v2"
)

// CallbackPath is where the provider posts call status updates.
const CallbackPath = "/api/v1/webhooks/calls"

const requestTimeout = 10 * time.Second

type Client struct {
	baseURL       string
	apiKey        string
	fromNumber    string
	region        string
	publicBaseURL string
	http          *http.Client
	breaker       *gobreaker.CircuitBreaker[any]
	scripts       *Scripts
	log           *logger.Logger
}

type callRequest struct {
	To          string            `json:"to"`
	From        string            `json:"from"`
	Say         string            `json:"say"`
	CallbackURL string            `json:"callbackUrl"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type messageRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type providerResponse struct {
	ID  string `json:"id"`
	Sid string `json:"sid"`
}

func (r providerResponse) ref() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Sid
}

// NewClient builds the provider client. An empty base URL yields a client
// whose calls fail with an Unavailable error, so leads still progress through
// their no-answer paths.
func NewClient(cfg config.CallProviderConfig, log *logger.Logger) (*Client, error) {
	scripts, err := LoadScripts(cfg.GetCallScriptsPath())
	if err != nil {
		return nil, err
	}

	region := cfg.GetCallProviderDefaultRegion()
	if region == "" {
		region = phone.DefaultRegion
	}

	c := &Client{
		baseURL:       strings.TrimRight(cfg.GetCallProviderBaseURL(), "/"),
		apiKey:        cfg.GetCallProviderAPIKey(),
		fromNumber:    cfg.GetCallProviderFromNumber(),
		region:        region,
		publicBaseURL: strings.TrimRight(cfg.GetPublicBaseURL(), "/"),
		http:          &http.Client{Timeout: requestTimeout},
		scripts:       scripts,
		log:           log,
	}
	c.breaker = newBreaker(cfg.GetCallProviderBreakerFailures(), cfg.GetCallProviderBreakerTimeout(), log)

	if c.baseURL == "" {
		log.Warn("CALL_PROVIDER_BASE_URL not configured; outbound calls and SMS are disabled")
	}
	return c, nil
}

func newBreaker(failures int, timeout time.Duration, log *logger.Logger) *gobreaker.CircuitBreaker[any] {
	if failures < 1 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "call-provider",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		// Rejected requests say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || apperr.IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// PlaceCall dials req.ToPhone and speaks the rendered script. The provider
// reports progress to the callback URL, which carries the lead and role.
func (c *Client) PlaceCall(ctx context.Context, req ports.CallRequest) (string, error) {
	to, err := phone.ParseE164(req.ToPhone, c.region)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "unusable phone number", err)
	}
	say, err := c.scripts.Render(req.Script, req.Vars)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "render call script", err)
	}

	ref, err := c.post(ctx, "/calls", callRequest{
		To:          to,
		From:        c.fromNumber,
		Say:         say,
		CallbackURL: c.CallbackURL(req.LeadID.String(), string(req.Role)),
		Metadata: map[string]string{
			"leadId": req.LeadID.String(),
			"role":   string(req.Role),
		},
	})
	if err != nil {
		return "", err
	}

	c.log.Info("confirmation call placed", "leadId", req.LeadID, "role", req.Role, "callRef", ref)
	return ref, nil
}

// SendSMS texts the rendered script to req.ToPhone.
func (c *Client) SendSMS(ctx context.Context, req ports.SMSRequest) (string, error) {
	to, err := phone.ParseE164(req.ToPhone, c.region)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "unusable phone number", err)
	}
	body, err := c.scripts.Render(req.Script, req.Vars)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "render sms script", err)
	}

	ref, err := c.post(ctx, "/messages", messageRequest{To: to, From: c.fromNumber, Body: body})
	if err != nil {
		return "", err
	}

	c.log.Info("sms sent", "leadId", req.LeadID, "script", req.Script, "messageRef", ref)
	return ref, nil
}

// CallbackURL is the status webhook for one call.
func (c *Client) CallbackURL(leadID, role string) string {
	query := url.Values{}
	query.Set("leadId", leadID)
	query.Set("role", role)
	return c.publicBaseURL + CallbackPath + "?" + query.Encode()
}

func (c *Client) post(ctx context.Context, path string, payload any) (string, error) {
	if c.baseURL == "" {
		return "", apperr.Unavailable("call provider not configured", nil)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal provider payload: %w", err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, path, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", apperr.Unavailable("call provider circuit open", err)
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) do(ctx context.Context, path string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Unavailable("call provider request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	switch {
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return "", apperr.Unavailable(fmt.Sprintf("call provider returned %d", resp.StatusCode), errors.New(strings.TrimSpace(string(data))))
	case resp.StatusCode >= http.StatusBadRequest:
		return "", apperr.Wrap(apperr.KindBadRequest, fmt.Sprintf("call provider rejected request with %d", resp.StatusCode), errors.New(strings.TrimSpace(string(data))))
	}

	var parsed providerResponse
	if err := json.Unmarshal(data, &parsed); err != nil || parsed.ref() == "" {
		return "", apperr.Wrap(apperr.KindInternal, "call provider response has no id", err)
	}
	return parsed.ref(), nil
}

var _ ports.CallProvider = (*Client)(nil)
