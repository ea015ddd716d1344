package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/smallbiznis/pantry/internal/observability/tracing"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"github.com/smallbiznis/pantry/pkg/jsonfield"
)

type httpSender struct {
	client *http.Client
}

func NewHTTPSender(client *http.Client) outboxdomain.Sender {
	return &httpSender{client: tracing.WrapHTTPClient(client)}
}

// Send treats non-2xx responses and {"status":"error"} envelopes as failures.
func (s *httpSender) Send(ctx context.Context, event outboxdomain.Event, delivery outboxdomain.Delivery) error {
	var body io.Reader
	if len(delivery.Body) > 0 {
		body = bytes.NewReader(delivery.Body)
	}
	req, err := http.NewRequestWithContext(ctx, delivery.Method, delivery.URL, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(outboxdomain.HeaderEventType, event.EventType)
	req.Header.Set(outboxdomain.HeaderEventID, event.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &outboxdomain.DeliveryError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s %s: %d %s", delivery.Method, delivery.URL, resp.StatusCode, strings.TrimSpace(string(raw))),
		}
	}

	if envelope, err := jsonfield.Parse(raw); err == nil {
		if strings.EqualFold(envelope.String("status"), "error") {
			return &outboxdomain.DeliveryError{
				StatusCode: resp.StatusCode,
				Message:    "rejected: " + envelope.StringOr("unknown reason", "message", "detail"),
			}
		}
	}
	return nil
}
