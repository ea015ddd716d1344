// Package upstream holds the HTTP clients the services use to call each
// other: stock checks and rollbacks, kitchen status and sync, and the order
// status pull used by kitchen reconciliation.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/pantry/internal/observability/tracing"
	"go.uber.org/zap"
)

const maxBody = 4 << 20

// Envelope is the business response body shared by every service.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data"`
}

func (e Envelope) OK() bool { return strings.EqualFold(e.Status, "success") }

// Error reports a transport failure or a non-2xx answer from a service.
type Error struct {
	Service    string
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d", e.Service, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Upstream() string { return e.Service }

// Rejected is a business error returned inside a 200 envelope. It matches
// any sentinel error whose text equals Code, so callers can use errors.Is
// against their own domain errors.
type Rejected struct {
	Service string
	Code    string
	Message string
	Data    json.RawMessage
}

func (e *Rejected) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Service + ": " + e.Code
}

func (e *Rejected) Is(target error) bool {
	return target != nil && e.Code != "" && target.Error() == e.Code
}

type transport struct {
	service string
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func newTransport(service, baseURL string, client *http.Client, log *zap.Logger) transport {
	if log == nil {
		log = zap.NewNop()
	}
	return transport{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    tracing.WrapHTTPClient(client),
		log:     log.Named(service + ".client"),
	}
}

// do sends body as JSON and returns the raw response of a 2xx answer.
func (t transport) do(ctx context.Context, op string, timeout time.Duration, method, path string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Service: t.service, Op: op, Err: err}
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return nil, &Error{Service: t.service, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		t.log.Warn("request failed", zap.String("op", op), zap.Error(err))
		return nil, &Error{Service: t.service, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &Error{Service: t.service, Op: op, Err: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		t.log.Warn("unexpected status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &Error{Service: t.service, Op: op, StatusCode: resp.StatusCode}
	}
	return raw, nil
}

// envelope calls do and decodes the body as an Envelope. A "error" status
// becomes *Rejected.
func (t transport) envelope(ctx context.Context, op string, timeout time.Duration, method, path string, body any) (Envelope, error) {
	raw, err := t.do(ctx, op, timeout, method, path, body)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, &Error{Service: t.service, Op: op, Err: err}
	}
	if !env.OK() {
		return env, &Rejected{Service: t.service, Code: env.Code, Message: env.Message, Data: env.Data}
	}
	return env, nil
}
