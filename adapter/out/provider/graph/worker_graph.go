// Package graph provides the Microsoft Graph mailbox adapter.
package graph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"

	"autoreply_worker/core/domain"
	"autoreply_worker/core/port/out"
	"autoreply_worker/pkg/apperr"
	"autoreply_worker/pkg/httputil"
	"autoreply_worker/pkg/ratelimit"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Config holds the Graph adapter configuration.
type Config struct {
	AccessToken string
	Mailbox     string // the mailbox's own address
	BaseURL     string // override for tests; empty means the real API
}

// Provider implements out.MailProvider against the Graph REST API.
//
// Every call passes the shared rate limiter before touching the wire,
// then a circuit breaker so a dead API fails fast instead of burning
// the request budget. Permission errors do not count as breaker
// failures: the remedy is reauthorization, and tripping the breaker
// would only mask the real error code.
type Provider struct {
	client  *http.Client
	baseURL string
	mailbox string
	limiter *ratelimit.WindowLimiter
	cb      *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewProvider creates a Graph provider with a static bearer token.
func NewProvider(cfg Config, limiter *ratelimit.WindowLimiter, log zerolog.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	base := httputil.NewClient(httputil.GraphClientConfig())
	client := &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken}),
			Base:   base.Transport,
		},
	}

	plog := log.With().Str("component", "graph_provider").Logger()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "graph-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || apperr.IsPermission(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			plog.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Provider{
		client:  client,
		baseURL: baseURL,
		mailbox: cfg.Mailbox,
		limiter: limiter,
		cb:      cb,
		log:     plog,
	}
}

// Address returns the mailbox's own address.
func (p *Provider) Address() string {
	return p.mailbox
}

// ListUnread fetches up to limit unread messages, newest first. An
// empty mailbox yields an empty slice.
func (p *Provider) ListUnread(ctx context.Context, limit int) ([]*domain.InboundMessage, error) {
	if limit <= 0 {
		limit = 20
	}

	params := url.Values{}
	params.Set("$filter", "isRead eq false")
	params.Set("$top", fmt.Sprintf("%d", limit))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$select", "id,subject,bodyPreview,from,isRead,receivedDateTime")

	var resp struct {
		Value []graphMessage `json:"value"`
	}
	if err := p.get(ctx, "/me/messages?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	messages := make([]*domain.InboundMessage, 0, len(resp.Value))
	for i := range resp.Value {
		messages = append(messages, convertMessage(&resp.Value[i]))
	}
	return messages, nil
}

// MarkRead marks a message as read.
func (p *Provider) MarkRead(ctx context.Context, messageID string) error {
	return p.patch(ctx, fmt.Sprintf("/me/messages/%s", url.PathEscape(messageID)), map[string]bool{
		"isRead": true,
	})
}

// SendReply replies on the message's existing thread. Graph composes
// the reply server-side, so only the comment body goes over the wire.
func (p *Provider) SendReply(ctx context.Context, messageID, body string) error {
	return p.post(ctx, fmt.Sprintf("/me/messages/%s/reply", url.PathEscape(messageID)), map[string]string{
		"comment": body,
	}, nil)
}

// HTTP helpers

func (p *Provider) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+path, nil)
	if err != nil {
		return err
	}
	return p.doRequest(ctx, req, result)
}

func (p *Provider) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return p.doRequest(ctx, req, result)
}

func (p *Provider) patch(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "PATCH", p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return p.doRequest(ctx, req, nil)
}

// doRequest admits the call through the rate limiter, runs it under
// the breaker, and maps failures onto the error taxonomy.
func (p *Provider) doRequest(ctx context.Context, req *http.Request, result interface{}) error {
	release, err := p.limiter.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = p.cb.Execute(func() (interface{}, error) {
		return nil, p.execute(req, result)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperr.Transport("graph", err)
	}
	return err
}

func (p *Provider) execute(req *http.Request, result interface{}) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return apperr.Transport("graph", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return p.mapAPIError(req, resp.StatusCode, body)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return apperr.Transport("graph", fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

func (p *Provider) mapAPIError(req *http.Request, status int, body []byte) error {
	cause := fmt.Errorf("graph API error: %d - %s", status, string(body))

	switch {
	case status == http.StatusForbidden || status == http.StatusUnauthorized ||
		strings.Contains(string(body), "ErrorAccessDenied"):
		return apperr.PermissionDenied(fmt.Sprintf("%s %s", req.Method, req.URL.Path), cause)
	case status == http.StatusTooManyRequests:
		p.log.Warn().Str("path", req.URL.Path).Msg("graph API throttled the request")
		return apperr.RateLimited("graph")
	default:
		return apperr.Transport("graph", cause)
	}
}

// Graph API types

type graphMessage struct {
	ID               string         `json:"id"`
	Subject          string         `json:"subject"`
	BodyPreview      string         `json:"bodyPreview"`
	From             graphRecipient `json:"from"`
	IsRead           bool           `json:"isRead"`
	ReceivedDateTime string         `json:"receivedDateTime"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func convertMessage(msg *graphMessage) *domain.InboundMessage {
	receivedAt, _ := time.Parse(time.RFC3339, msg.ReceivedDateTime)

	return &domain.InboundMessage{
		ExternalID:  msg.ID,
		Subject:     msg.Subject,
		FromEmail:   msg.From.EmailAddress.Address,
		FromName:    msg.From.EmailAddress.Name,
		BodyPreview: msg.BodyPreview,
		ReceivedAt:  receivedAt,
		IsRead:      msg.IsRead,
	}
}

var _ out.MailProvider = (*Provider)(nil)
