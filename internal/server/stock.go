package server

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
)

const codeInsufficientStock = "insufficient_stock"

func (s *Server) registerStockRoutes() {
	stock := s.engine.Group("/stock")
	stock.POST("/check_availability", s.CheckStock)
	stock.POST("/check", s.CheckStock)
	stock.POST("/consume", s.ConsumeStock)
	stock.POST("/check_and_consume", s.ConsumeStock)
	stock.POST("/rollback/:order_id", s.RollbackStock)
	stock.POST("/rollback/:order_id/items", s.RollbackStockItems)

	s.engine.GET("/order/:order_id/ingredients", s.OrderConsumption)
}

func (s *Server) CheckStock(c *gin.Context) {
	s.evaluateStock(c, false)
}

func (s *Server) ConsumeStock(c *gin.Context) {
	s.evaluateStock(c, true)
}

// evaluateStock answers shortages with an error envelope whose data is the
// full result, so callers can read shortages and suggestions.
func (s *Server) evaluateStock(c *gin.Context, consume bool) {
	var req stockdomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	result, err := s.stockSvc.CheckAndConsume(c.Request.Context(), req, consume)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !result.CanFulfill {
		reject(c, codeInsufficientStock, result.Message, result)
		return
	}
	respond(c, result.Message, result)
}

func (s *Server) RollbackStock(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))
	result, err := s.stockSvc.Rollback(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, rollbackMessage(result), result)
}

type rollbackItemsRequest struct {
	Items []stockdomain.Item `json:"items" binding:"required,min=1,dive"`
}

func (s *Server) RollbackStockItems(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))
	var req rollbackItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	result, err := s.stockSvc.RollbackItems(c.Request.Context(), orderID, req.Items)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, rollbackMessage(result), result)
}

func rollbackMessage(result *stockdomain.RollbackResult) string {
	if result.AlreadyRolledBack {
		return fmt.Sprintf("Stock for order %s was already rolled back", result.OrderID)
	}
	return fmt.Sprintf("Restored %d ingredients for order %s", result.RestoredIngredients, result.OrderID)
}

func (s *Server) OrderConsumption(c *gin.Context) {
	view, err := s.stockSvc.Consumption(c.Request.Context(), strings.TrimSpace(c.Param("order_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("%d ingredients consumed", len(view.Details)), view)
}
