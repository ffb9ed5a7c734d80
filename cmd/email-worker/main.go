// Package main is the entrypoint for the Email Worker Lambda function.
//
// With EMAIL_DELIVERY=queue the notifier enqueues each rendered alert email
// on SQS instead of calling SendGrid. This worker consumes those messages in
// batches and delivers them.
//
// Handler flow, for each SQS message in the batch:
//  1. Decode and validate the EmailMessage body. Malformed messages are
//     dropped (ACKed) since a retry cannot fix them.
//  2. Record queue lag from the SentTimestamp attribute.
//  3. Send through SendGrid.
//  4. Transient provider failures are reported in batchItemFailures so SQS
//     redelivers only that message. Blocked recipients are dropped.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"sitewatch/internal/app"
	"sitewatch/internal/config"
	"sitewatch/internal/metrics"
	"sitewatch/internal/queue"
	"sitewatch/internal/types"
)

// EmailSender delivers one email and returns the provider message id.
type EmailSender interface {
	Send(ctx context.Context, email types.AlertEmail) (string, error)
}

// DeliveryMetrics records per-message outcomes.
type DeliveryMetrics interface {
	RecordDelivery(ctx context.Context, result string)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// Handler holds the dependencies for the email worker Lambda handler.
type Handler struct {
	sender  EmailSender
	metrics DeliveryMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// Handle processes an SQS event. Each message is processed independently;
// messages that should be retried are returned in BatchItemFailures.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "email delivery will be retried",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage returns an error only when the message should be redelivered.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	msg, err := queue.DecodeEmailMessage(record.Body)
	if err != nil {
		h.logger.ErrorContext(ctx, "dropping undeliverable email message",
			"message_id", record.MessageId,
			"error", err,
		)
		h.metrics.RecordDelivery(ctx, metrics.ResultDropped)
		return nil
	}

	logger := h.logger.With(
		"message_id", record.MessageId,
		"run_id", msg.RunID,
		"reference_id", msg.Email.ReferenceID,
		"receive_count", record.Attributes["ApproximateReceiveCount"],
	)

	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sent); err == nil {
			h.metrics.RecordQueueLag(ctx, h.now().Sub(sentAt))
		}
	}

	providerID, err := h.sender.Send(ctx, msg.Email)
	if err != nil {
		if !isRetryable(err) {
			logger.WarnContext(ctx, "email delivery permanently failed", "error", err)
			h.metrics.RecordDelivery(ctx, metrics.ResultDropped)
			return nil
		}
		h.metrics.RecordDelivery(ctx, metrics.ResultFailure)
		return fmt.Errorf("send email: %w", err)
	}

	h.metrics.RecordDelivery(ctx, metrics.ResultSuccess)
	logger.InfoContext(ctx, "email delivered", "provider_message_id", providerID)
	return nil
}

// isRetryable reports whether a redelivery could succeed. Suppressed
// recipients and invalid payloads never will.
func isRetryable(err error) bool {
	code := types.CodeOf(err)
	switch {
	case code == types.ErrCodeEmailBlocked:
		return false
	case strings.HasPrefix(string(code), "validation_"):
		return false
	default:
		return true
	}
}

// parseMillisTimestamp parses a millisecond-epoch string such as the SQS
// SentTimestamp attribute.
func parseMillisTimestamp(ms string) (time.Time, error) {
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := config.NewLogger(cfg.LogLevel).With("service", "sitewatch-email-worker")
	logger.Info("Email Worker Lambda initializing (cold start)", "environment", cfg.Environment)

	ctx := context.Background()
	var m app.Metrics = metrics.Noop{}
	if cfg.Telemetry.MetricsEnabled {
		awsCfg, err := app.LoadAWS(ctx, cfg)
		if err != nil {
			return err
		}
		m = app.NewMetrics(cfg, awsCfg, logger)
	}

	handler := &Handler{
		sender:  app.NewDirectSender(cfg, logger),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}

	logger.Info("Email Worker Lambda initialized",
		"from_address", cfg.Email.FromAddress,
		"metrics_enabled", cfg.Telemetry.MetricsEnabled,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run ./cmd/email-worker
	if cfg.IsLocal() {
		logger.Info("APP_ENV=local: reading SQS event from stdin")
		return runLocal(ctx, handler, os.Stdin, os.Stdout)
	}

	lambda.Start(handler.Handle)
	return nil
}

func runLocal(ctx context.Context, h *Handler, r io.Reader, w io.Writer) error {
	payload, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("no input received on stdin")
	}
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		return fmt.Errorf("parse stdin as SQS event: %w", err)
	}
	response, err := h.Handle(ctx, sqsEvent)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(response)
}
