package server

import (
	"fmt"

	"github.com/gin-gonic/gin"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
)

func (s *Server) registerIngredientRoutes() {
	r := s.engine
	r.GET("/list_ingredients", s.ListIngredients)
	r.GET("/ingredients/available", s.ListAvailableIngredients)
	r.POST("/add_ingredient", s.AddIngredient)
	r.PUT("/update_ingredient", s.UpdateIngredient)
	r.PATCH("/set_ingredient_availability/:id", s.SetIngredientAvailability)
	r.PATCH("/toggle_ingredient_availability/:id", s.ToggleIngredientAvailability)

	stock := r.Group("/stock")
	stock.GET("", s.ListIngredients)
	stock.POST("/add", s.RestockIngredient)
	stock.PUT("/minimum", s.SetIngredientMinimum)
	stock.GET("/alerts", s.StockAlerts)
	stock.GET("/history", s.StockHistory)
	stock.GET("/history/:ingredient_id", s.StockHistory)
}

func (s *Server) ListIngredients(c *gin.Context) {
	showUnavailable, err := parseOptionalBool(c.Query("show_unavailable"))
	if err != nil {
		AbortWithError(c, newValidationError("show_unavailable", "invalid_bool", "must be true or false"))
		return
	}
	include := showUnavailable != nil && *showUnavailable

	items, err := s.ingredientSvc.List(c.Request.Context(), include)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("%d ingredients", len(items)), gin.H{
		"ingredients": items,
		"total":       len(items),
	})
}

func (s *Server) ListAvailableIngredients(c *gin.Context) {
	items, err := s.ingredientSvc.List(c.Request.Context(), false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("%d ingredients available", len(items)), gin.H{
		"ingredients": items,
		"total":       len(items),
	})
}

func (s *Server) AddIngredient(c *gin.Context) {
	var req ingredientdomain.AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.PerformedBy = performer(c)

	item, err := s.ingredientSvc.Add(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("Ingredient %s added", item.Name), item)
}

func (s *Server) UpdateIngredient(c *gin.Context) {
	var req ingredientdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.PerformedBy = performer(c)

	result, err := s.ingredientSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("Ingredient %s updated", result.Ingredient.Name), result)
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available" binding:"required"`
}

func (s *Server) SetIngredientAvailability(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ingredientdomain.ErrInvalidID)
		return
	}
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	s.setAvailability(c, ingredientdomain.AvailabilityRequest{
		ID:          id,
		Available:   *req.IsAvailable,
		PerformedBy: performer(c),
	})
}

func (s *Server) ToggleIngredientAvailability(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ingredientdomain.ErrInvalidID)
		return
	}
	item, err := s.ingredientSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.setAvailability(c, ingredientdomain.AvailabilityRequest{
		ID:          id,
		Available:   !item.IsAvailable,
		PerformedBy: performer(c),
	})
}

func (s *Server) setAvailability(c *gin.Context, req ingredientdomain.AvailabilityRequest) {
	result, err := s.ingredientSvc.SetAvailability(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	state := "unavailable"
	if result.Ingredient.IsAvailable {
		state = "available"
	}
	respond(c, fmt.Sprintf("Ingredient %s is %s", result.Ingredient.Name, state), result)
}

func (s *Server) RestockIngredient(c *gin.Context) {
	var req ingredientdomain.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.PerformedBy = performer(c)

	result, err := s.ingredientSvc.Restock(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("Stock of %s increased from %s to %s %s",
		result.Ingredient.Name, result.Before, result.After, result.Ingredient.Unit), result)
}

func (s *Server) SetIngredientMinimum(c *gin.Context) {
	var req ingredientdomain.MinimumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.PerformedBy = performer(c)

	result, err := s.ingredientSvc.SetMinimum(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("Minimum stock of %s set to %s %s",
		result.Ingredient.Name, result.After, result.Ingredient.Unit), result)
}

func (s *Server) StockAlerts(c *gin.Context) {
	report, err := s.ingredientSvc.Alerts(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, report.Message, report)
}

func (s *Server) StockHistory(c *gin.Context) {
	raw := c.Param("ingredient_id")
	if raw == "" {
		raw = c.Query("ingredient_id")
	}
	ingredientID, err := parseOptionalID(raw)
	if err != nil {
		AbortWithError(c, ingredientdomain.ErrInvalidID)
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_int", "must be a number"))
		return
	}

	filter := ingredientdomain.HistoryFilter{
		ActionType:  ingredientdomain.Action(c.Query("action_type")),
		PerformedBy: c.Query("performed_by"),
	}
	if ingredientID != nil {
		filter.IngredientID = *ingredientID
	}
	if limit != nil {
		filter.Limit = *limit
	}

	entries, err := s.ingredientSvc.History(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("%d history entries", len(entries)), gin.H{
		"history": entries,
		"total":   len(entries),
		"limit":   filter.NormalizedLimit(),
	})
}
