// Package queue provides the SQS producer that hands rendered alert emails to
// the email worker, and the message codec both sides share.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"sitewatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EmailMessage is the SQS body consumed by the email worker.
type EmailMessage struct {
	Email      types.AlertEmail `json:"email"`
	RunID      string           `json:"run_id,omitempty"`
	RequestID  string           `json:"request_id,omitempty"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}

// DecodeEmailMessage parses and validates an SQS body.
func DecodeEmailMessage(body string) (EmailMessage, error) {
	var msg EmailMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return msg, types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed email message", err)
	}
	if strings.TrimSpace(msg.Email.To) == "" {
		return msg, types.NewAppError(types.ErrCodeValidationMissingField, "email message has no recipient", nil)
	}
	if msg.Email.Subject == "" || msg.Email.TextBody == "" {
		return msg, types.NewAppError(types.ErrCodeValidationMissingField, "email message has no subject or body", nil)
	}
	return msg, nil
}

// EmailPublisher implements the dispatcher's email sender by enqueueing the
// message instead of calling the provider. The returned id is the SQS
// message id; the provider id is recorded by the worker's logs.
type EmailPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
	clock    types.Clock
}

// NewEmailPublisher creates a publisher for queueURL.
func NewEmailPublisher(client SQSSender, queueURL string, logger *slog.Logger) *EmailPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailPublisher{client: client, queueURL: queueURL, logger: logger, clock: types.RealClock{}}
}

// Send enqueues email.
func (p *EmailPublisher) Send(ctx context.Context, email types.AlertEmail) (string, error) {
	if strings.TrimSpace(email.To) == "" {
		return "", types.NewAppError(types.ErrCodeValidationMissingField, "email has no recipient", nil)
	}

	msg := EmailMessage{
		Email:      email,
		RunID:      types.GetRunID(ctx),
		RequestID:  types.GetRequestID(ctx),
		EnqueuedAt: p.clock.Now(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("queue: failed to marshal EmailMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reference_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(referenceOrNone(email.ReferenceID)),
			},
		},
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamQueue, "failed to enqueue alert email", err)
	}

	var messageID string
	if out != nil && out.MessageId != nil {
		messageID = *out.MessageId
	}
	p.logger.InfoContext(ctx, "alert email enqueued",
		"queue_url", p.queueURL,
		"message_id", messageID,
		"reference_id", email.ReferenceID,
		"run_id", msg.RunID,
	)
	return messageID, nil
}

// SQS rejects empty attribute values.
func referenceOrNone(id string) string {
	if id == "" {
		return "none"
	}
	return id
}
