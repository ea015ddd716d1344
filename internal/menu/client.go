// Package menu is the read-only client for the external menu service:
// recipes, orderable menu names and per-menu flavor lists.
package menu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pantry/internal/config"
	"github.com/smallbiznis/pantry/internal/observability/tracing"
	"github.com/smallbiznis/pantry/pkg/jsonfield"
	"go.uber.org/zap"
)

const (
	recipeTimeout = 6 * time.Second
	menuTimeout   = 5 * time.Second
	flavorTimeout = 3 * time.Second
)

var (
	menuNameFields   = []string{"base_name_en", "base_name_id", "base_name", "menu_name", "name"}
	flavorNameFields = []string{"flavor_name_en", "flavor_name_id", "flavor_name", "name"}
)

var ErrMenuNotFound = errors.New("menu_not_found")

// RecipeLine is one ingredient of a menu's base recipe, per serving.
type RecipeLine struct {
	IngredientID snowflake.ID
	Quantity     decimal.Decimal
	Unit         string
}

type Client interface {
	// Recipes returns the base recipe of every requested name. Names the
	// menu service does not know map to an empty slice.
	Recipes(ctx context.Context, menuNames []string) (map[string][]RecipeLine, error)
	MenuNames(ctx context.Context) ([]string, error)
	// Flavors returns the flavor names offered for a menu.
	Flavors(ctx context.Context, menuName string) ([]string, error)
}

// Error reports a failed call to the menu service.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("menu %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("menu %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Upstream() string { return "menu" }

type httpClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) Client {
	return NewHTTPClient(cfg.Services.Menu, nil, log)
}

func NewHTTPClient(baseURL string, client *http.Client, log *zap.Logger) Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    tracing.WrapHTTPClient(client),
		log:     log.Named("menu.client"),
	}
}

func (c *httpClient) Recipes(ctx context.Context, menuNames []string) (map[string][]RecipeLine, error) {
	out := make(map[string][]RecipeLine, len(menuNames))
	if len(menuNames) == 0 {
		return out, nil
	}

	body, err := json.Marshal(map[string][]string{"menu_names": menuNames})
	if err != nil {
		return nil, err
	}
	raw, err := c.do(ctx, "recipes", recipeTimeout, http.MethodPost, "/recipes/batch", body)
	if err != nil {
		return nil, err
	}

	root, err := jsonfield.Parse(raw)
	if err != nil {
		return nil, &Error{Op: "recipes", Err: err}
	}
	recipes, _ := root.Unwrap("data").Object("recipes")
	for _, name := range menuNames {
		lines, _ := recipes.Objects(name)
		parsed := make([]RecipeLine, 0, len(lines))
		for _, line := range lines {
			id, ok := line.Int("ingredient_id")
			if !ok {
				continue
			}
			qty, _ := line.Decimal("quantity")
			parsed = append(parsed, RecipeLine{
				IngredientID: snowflake.ID(id),
				Quantity:     qty,
				Unit:         line.String("unit"),
			})
		}
		out[name] = parsed
	}
	return out, nil
}

func (c *httpClient) MenuNames(ctx context.Context) ([]string, error) {
	raw, err := c.do(ctx, "list", menuTimeout, http.MethodGet, "/menu", nil)
	if err != nil {
		return nil, err
	}
	items, err := decodeList(raw, "menus")
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	return collectNames(items, menuNameFields), nil
}

func (c *httpClient) Flavors(ctx context.Context, menuName string) ([]string, error) {
	path := "/menu/by_name/" + url.PathEscape(menuName) + "/flavors"
	raw, err := c.do(ctx, "flavors", flavorTimeout, http.MethodGet, path, nil)
	if err != nil {
		var menuErr *Error
		if errors.As(err, &menuErr) && menuErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrMenuNotFound, menuName)
		}
		return nil, err
	}
	items, err := decodeList(raw, "flavors")
	if err != nil {
		return nil, &Error{Op: "flavors", Err: err}
	}
	return collectNames(items, flavorNameFields), nil
}

func (c *httpClient) do(ctx context.Context, op string, timeout time.Duration, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("menu request failed", zap.String("op", op), zap.Error(err))
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode}
	}
	return raw, nil
}

// decodeList accepts a bare array or an object wrapping it under key or "data".
func decodeList(raw []byte, key string) ([]jsonfield.Object, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return jsonfield.ParseArray(trimmed)
	}
	root, err := jsonfield.Parse(trimmed)
	if err != nil {
		return nil, err
	}
	items, _ := root.Objects(key, "data", "items")
	return items, nil
}

// collectNames keeps every alias of each entry, deduplicated in first-seen order.
func collectNames(items []jsonfield.Object, fields []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(items))
	for _, item := range items {
		for _, field := range fields {
			name := item.String(field)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
