package ingredient

import (
	"net/http"

	"github.com/smallbiznis/pantry/internal/config"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	outboxservice "github.com/smallbiznis/pantry/internal/outbox/service"
)

// NewOutboxRouter routes inventory events to the menu service.
func NewOutboxRouter(cfg config.Config) outboxdomain.Router {
	menu := cfg.Services.Menu
	return outboxservice.NewRouter(
		outboxservice.Route{
			EventType: ingredientdomain.EventIngredientAdded,
			Method:    http.MethodPost,
			URL:       menu + "/receive_ingredient_event",
		},
		outboxservice.Route{
			EventType: ingredientdomain.EventIngredientUpdated,
			Method:    http.MethodPut,
			URL:       menu + "/update_ingredient_event",
		},
		outboxservice.Route{
			EventType: ingredientdomain.EventIngredientMadeAvailable,
			Method:    http.MethodPut,
			URL:       menu + "/update_ingredient_event",
		},
		outboxservice.Route{
			EventType: ingredientdomain.EventIngredientMadeUnavailable,
			Method:    http.MethodPut,
			URL:       menu + "/update_ingredient_event",
		},
	)
}
