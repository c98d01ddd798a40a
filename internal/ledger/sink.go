package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"

	"tosti/internal/models"
)

// Sink receives finished ledger documents. doc.Key is the de-duplication
// key on the receiving side.
type Sink interface {
	Push(ctx context.Context, doc models.LedgerDocument) error
}

type SinkConfig struct {
	Provider string
	URL      string
	Token    string
	Timeout  time.Duration
}

func NewSink(cfg SinkConfig) Sink {
	switch cfg.Provider {
	case "", "log":
		return logSink{}
	case "noop":
		return noopSink{}
	case "fail":
		return failSink{}
	case "webhook":
		if cfg.URL == "" {
			log.Printf("ledger webhook has no url, falling back to log sink")
			return logSink{}
		}
		return NewWebhookSink(cfg.URL, cfg.Token, cfg.Timeout)
	default:
		log.Printf("ledger provider %q unknown, falling back to log sink", cfg.Provider)
		return logSink{}
	}
}

type logSink struct{}

func (logSink) Push(ctx context.Context, doc models.LedgerDocument) error {
	log.Printf("ledger export key=%s kind=%s ref=%d lines=%d", doc.Key, doc.Kind, doc.ReferenceID, len(doc.Lines))
	return nil
}

type noopSink struct{}

func (noopSink) Push(ctx context.Context, doc models.LedgerDocument) error {
	return nil
}

type failSink struct{}

func (failSink) Push(ctx context.Context, doc models.LedgerDocument) error {
	return errors.New("sink failure")
}

type WebhookSink struct {
	client *resty.Client
	url    string
}

func NewWebhookSink(url, token string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &WebhookSink{client: client, url: url}
}

func (s *WebhookSink) Push(ctx context.Context, doc models.LedgerDocument) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", doc.Key).
		SetBody(doc).
		Post(s.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("sink rejected export: status %d", resp.StatusCode())
	}
	return nil
}
