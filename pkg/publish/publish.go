// Package publish announces persisted history pages on NATS with
// OpenTelemetry trace propagation.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"redditcrawler/pkg/crawler"
	"redditcrawler/pkg/logger"
)

// DefaultSubject prefixes every page event; the subreddit is appended
const DefaultSubject = "reddit.history.page"

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publish serializes v as JSON and publishes it to subject, carrying the
// trace context of ctx in the message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return nc.PublishMsg(msg)
}

// Subscribe registers a handler for JSON messages of type T. Malformed
// messages are dropped.
func Subscribe[T any](nc *nats.Conn, subject string, handler func(context.Context, T)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		handler(ctx, v)
	})
}

// PagePublisher implements crawler.PageObserver on a NATS connection
type PagePublisher struct {
	nc      *nats.Conn
	subject string
	owned   bool
	logger  logger.Logger
}

var _ crawler.PageObserver = (*PagePublisher)(nil)

// Connect dials url and returns a publisher that closes the connection on Close
func Connect(url, subject string, log logger.Logger) (*PagePublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("redditcrawler"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	p := NewPagePublisher(nc, subject, log)
	p.owned = true
	return p, nil
}

// NewPagePublisher wraps an existing connection
func NewPagePublisher(nc *nats.Conn, subject string, log logger.Logger) *PagePublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &PagePublisher{nc: nc, subject: subject, logger: logger.ForComponent(log, "publish")}
}

// SubjectFor returns the subject events of subreddit are published on
func (p *PagePublisher) SubjectFor(subreddit string) string {
	return p.subject + "." + subreddit
}

// PagePersisted publishes event on <subject>.<subreddit>
func (p *PagePublisher) PagePersisted(ctx context.Context, event crawler.PageEvent) error {
	subject := p.SubjectFor(event.Subreddit)
	if err := Publish(ctx, p.nc, subject, event); err != nil {
		return fmt.Errorf("publish page %d of %s: %w", event.Page, event.Subreddit, err)
	}
	p.logger.DebugWithFields("page event published", map[string]interface{}{
		"subject": subject,
		"page":    event.Page,
		"count":   event.Count,
	})
	return nil
}

// Close flushes pending messages and closes an owned connection
func (p *PagePublisher) Close() error {
	if err := p.nc.FlushTimeout(5 * time.Second); err != nil {
		p.logger.WarnWithFields("flush before close failed", map[string]interface{}{"error": err.Error()})
	}
	if p.owned {
		p.nc.Close()
	}
	return nil
}
