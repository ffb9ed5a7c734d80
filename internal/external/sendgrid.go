package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sitewatch/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridClientConfig holds the configuration for creating a SendGridClient.
type SendGridClientConfig struct {
	APIKey    string
	BaseURL   string // Override for testing; defaults to sendGridAPIBase
	FromEmail string
	FromName  string
	Logger    *slog.Logger
}

// SendGridClient sends pre-rendered alert emails through the SendGrid v3
// Mail Send API.
type SendGridClient struct {
	base      *BaseClient
	apiKey    string
	baseURL   string
	fromEmail string
	fromName  string
	logger    *slog.Logger
}

// NewSendGridClient creates a new SendGridClient. The httpClient timeout
// bounds each attempt.
func NewSendGridClient(httpClient *http.Client, cfg SendGridClientConfig) *SendGridClient {
	base := NewBaseClient(
		httpClient,
		BreakerSettings{Name: "sendgrid"},
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"SiteWatch/1.0",
		WithUpstreamCode(types.ErrCodeUpstreamEmailProvider),
	)
	return NewSendGridClientWithBase(base, cfg)
}

// NewSendGridClientWithBase creates a SendGridClient with a pre-configured
// BaseClient, so tests can disable retries.
func NewSendGridClientWithBase(base *BaseClient, cfg SendGridClientConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SendGridClient{
		base:      base,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send transmits email and returns the provider message ID taken from the
// X-Message-Id response header.
//
// Error mapping:
//   - 403 Forbidden -> types.ErrCodeEmailBlocked (recipient on suppression list)
//   - 429 Too Many Requests -> handled by BaseClient (retry + ErrCodeUpstreamRateLimited)
//   - 5xx -> handled by BaseClient (retry + ErrCodeUpstreamEmailProvider)
//   - Other 4xx -> types.ErrCodeUpstreamEmailProvider
func (s *SendGridClient) Send(ctx context.Context, email types.AlertEmail) (string, error) {
	if email.To == "" {
		return "", types.NewAppError(types.ErrCodeValidationMissingField, "email recipient is required", nil)
	}

	body, err := json.Marshal(s.buildMailPayload(email))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal SendGrid mail payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create SendGrid mail send request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.base.Do(req)
	if err != nil {
		return "", s.wrapSendGridError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		msgID := resp.Header.Get("X-Message-Id")
		s.logger.DebugContext(ctx, "sendgrid accepted email", "reference_id", email.ReferenceID, "message_id", msgID)
		return msgID, nil
	}

	return "", s.handleErrorResponse(resp)
}

// ---------------------------------------------------------------------------
// Payload Construction
// ---------------------------------------------------------------------------

type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	CustomArgs       map[string]string         `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// buildMailPayload maps an AlertEmail to the SendGrid v3 payload. SendGrid
// requires text/plain to precede text/html.
func (s *SendGridClient) buildMailPayload(email types.AlertEmail) sendGridMailPayload {
	payload := sendGridMailPayload{
		Personalizations: []sendGridPersonalization{{
			To: []sendGridAddress{{Email: email.To, Name: email.ToName}},
		}},
		From:    sendGridAddress{Email: s.fromEmail, Name: s.fromName},
		Subject: email.Subject,
	}

	if email.TextBody != "" {
		payload.Content = append(payload.Content, sendGridContent{Type: "text/plain", Value: email.TextBody})
	}
	if email.HTMLBody != "" {
		payload.Content = append(payload.Content, sendGridContent{Type: "text/html", Value: email.HTMLBody})
	}

	if email.ReferenceID != "" {
		payload.CustomArgs = map[string]string{"reference_id": email.ReferenceID}
	}
	return payload
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

type sendGridErrorResponse struct {
	Errors []sendGridErrorDetail `json:"errors"`
}

type sendGridErrorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field"`
	Help    string `json:"help"`
}

func (s *SendGridClient) handleErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("SendGrid returned status %d and response body was unreadable", resp.StatusCode),
			readErr,
		)
	}

	var sgErr sendGridErrorResponse
	errMsg := string(body)
	if jsonErr := json.Unmarshal(body, &sgErr); jsonErr == nil && len(sgErr.Errors) > 0 {
		errMsg = sgErr.Errors[0].Message
	}

	return mapSendGridError(resp.StatusCode, errMsg)
}

func mapSendGridError(statusCode int, message string) error {
	switch {
	case statusCode == http.StatusForbidden:
		return types.NewAppError(types.ErrCodeEmailBlocked,
			fmt.Sprintf("SendGrid blocked delivery: %s", message), nil)
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "SendGrid rate limit exceeded", nil)
	case statusCode >= 500:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("SendGrid server error: %s", message), nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("SendGrid error (%d): %s", statusCode, message), nil)
	}
}

func (s *SendGridClient) wrapSendGridError(err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("SendGrid request failed: %v", err), err)
}

var _ EmailSender = (*SendGridClient)(nil)
