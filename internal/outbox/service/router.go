package service

import (
	"fmt"
	"net/http"

	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
)

// Route maps one event type to a request against the consumer.
type Route struct {
	EventType string
	Method    string
	// Build returns the URL and body for the event. A nil Build posts the raw
	// payload to URL.
	URL   string
	Build func(event outboxdomain.Event) (url string, body []byte, err error)
}

type tableRouter struct {
	routes map[string]Route
}

func NewRouter(routes ...Route) outboxdomain.Router {
	table := make(map[string]Route, len(routes))
	for _, route := range routes {
		table[route.EventType] = route
	}
	return &tableRouter{routes: table}
}

func (r *tableRouter) Route(event outboxdomain.Event) (outboxdomain.Delivery, error) {
	route, ok := r.routes[event.EventType]
	if !ok {
		return outboxdomain.Delivery{}, fmt.Errorf("%w: %s", outboxdomain.ErrUnroutable, event.EventType)
	}
	method := route.Method
	if method == "" {
		method = http.MethodPost
	}
	if route.Build == nil {
		return outboxdomain.Delivery{Method: method, URL: route.URL, Body: []byte(event.Payload)}, nil
	}
	url, body, err := route.Build(event)
	if err != nil {
		return outboxdomain.Delivery{}, err
	}
	return outboxdomain.Delivery{Method: method, URL: url, Body: body}, nil
}
