package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ibs-source/dispatch/router/golang/internal/config"
	"github.com/ibs-source/dispatch/router/golang/internal/log"
	"github.com/ibs-source/dispatch/router/golang/internal/message"
	"github.com/ibs-source/dispatch/router/golang/internal/warning"
)

// SQS consumes pointers from an SQS queue with long polling. Ack deletes the
// message, nack shortens its visibility timeout so the queue redelivers it.
type SQS struct {
	client      *sqs.Client
	queueURL    string
	waitTime    time.Duration
	maxMessages int32
	nackDelay   int32
	intake      Intake
	warnings    warning.Sink
	log         *log.Logger
}

// NewSQS creates the SQS source and verifies credentials can be resolved.
func NewSQS(ctx context.Context, cfg *config.SQSConfig, intake Intake,
	warnings warning.Sink, logger *log.Logger) (*SQS, error) {

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return &SQS{
		client:      sqs.NewFromConfig(awsCfg),
		queueURL:    cfg.QueueURL,
		waitTime:    cfg.WaitTime,
		maxMessages: int32(cfg.MaxMessages), // #nosec G115 - validated range 1-10
		nackDelay:   int32(cfg.NackDelaySeconds),
		intake:      intake,
		warnings:    warnings,
		log:         logger,
	}, nil
}

// Name identifies the source in logs
func (s *SQS) Name() string { return "sqs" }

// Run polls the queue until the context is cancelled
func (s *SQS) Run(ctx context.Context) error {
	s.log.Info("SQS source started on %s", s.queueURL)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(s.queueURL),
			MaxNumberOfMessages: s.maxMessages,
			WaitTimeSeconds:     int32(s.waitTime.Seconds()),
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			s.log.Error("SQS receive failed: %v", err)
			time.Sleep(time.Second)
			continue
		}

		if len(out.Messages) == 0 {
			continue
		}

		batchID := newBatchID()
		for _, m := range out.Messages {
			s.dispatch(ctx, batchID, aws.ToString(m.MessageId),
				aws.ToString(m.ReceiptHandle), []byte(aws.ToString(m.Body)))
		}
	}
}

// dispatch decodes one SQS message and hands it to the intake. Payloads that
// can never become valid are deleted so they do not cycle forever.
func (s *SQS) dispatch(ctx context.Context, batchID, messageID, receiptHandle string, body []byte) {
	ptr, err := parsePointer(body)
	if err != nil {
		s.warnings.AddWarning("MALFORMED_POINTER", warning.SeverityWarn, err.Error(), "sqs")
		s.deleteMessage(ctx, receiptHandle)
		return
	}

	ptr.BatchID = batchID
	ptr.BrokerMessageID = messageID

	cb := &sqsCallback{
		client:        s.client,
		queueURL:      s.queueURL,
		receiptHandle: receiptHandle,
		nackDelay:     s.nackDelay,
		log:           s.log,
	}
	s.intake.Route(ptr, cb)
}

func (s *SQS) deleteMessage(ctx context.Context, receiptHandle string) {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		s.log.Warn("SQS delete failed: %v", err)
	}
}

// Close is a no-op; the SQS client has no persistent connection to release.
func (s *SQS) Close() error { return nil }

// sqsCallback settles one received message. Outstanding calls use a fresh
// background context so settlement survives source shutdown.
type sqsCallback struct {
	client        *sqs.Client
	queueURL      string
	receiptHandle string
	nackDelay     int32
	log           *log.Logger
}

// Ack deletes the message from the queue
func (c *sqsCallback) Ack(p *message.Pointer) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(c.receiptHandle),
	})
	if err != nil {
		c.log.Warn("SQS ack failed for pointer %s: %v", p.ID, err)
	}
}

// Nack makes the message redeliverable after the configured delay
func (c *sqsCallback) Nack(p *message.Pointer) {
	c.NackWithDelay(p, int(c.nackDelay))
}

// NackWithDelay makes the message redeliverable after the given delay
func (c *sqsCallback) NackWithDelay(p *message.Pointer, seconds int) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if seconds < 0 {
		seconds = 0
	}
	if seconds > message.MaxDelaySeconds {
		seconds = message.MaxDelaySeconds
	}

	_, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.queueURL),
		ReceiptHandle:     aws.String(c.receiptHandle),
		VisibilityTimeout: int32(seconds), // #nosec G115 - clamped to 0..43200
	})
	if err != nil {
		c.log.Warn("SQS nack failed for pointer %s: %v", p.ID, err)
	}
}
