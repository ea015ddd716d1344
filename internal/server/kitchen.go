package server

import (
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	kitchendomain "github.com/smallbiznis/pantry/internal/kitchen/domain"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"github.com/smallbiznis/pantry/pkg/jsonfield"
)

func (s *Server) registerKitchenRoutes() {
	r := s.engine
	r.POST("/receive_order", s.ReceiveOrder)
	r.GET("/stream/orders", s.StreamKitchenOrders)

	kitchen := r.Group("/kitchen")
	kitchen.POST("/update_status/:order_id", s.UpdateKitchenStatus)
	kitchen.POST("/item_cancelled", s.KitchenItemCancelled)
	kitchen.POST("/sync_order_items/:order_id", s.SyncKitchenOrder)
	kitchen.GET("/orders", s.ListKitchenOrders)
	kitchen.GET("/duration/:order_id", s.KitchenDuration)
	kitchen.GET("/status", s.KitchenStatus)
	kitchen.GET("/status/now", s.KitchenStatus)
	kitchen.POST("/status", s.SetKitchenStatus)
}

func (s *Server) ReceiveOrder(c *gin.Context) {
	var req kitchendomain.ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	tagOrder(c, req.OrderID)
	result, err := s.kitchenSvc.ReceiveOrder(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	message := fmt.Sprintf("Order %s received", result.OrderID)
	if result.Duplicate {
		message = fmt.Sprintf("Order %s was already received", result.OrderID)
	}
	respond(c, message, result)
}

// UpdateKitchenStatus reads status and reason from the query string, or
// from the JSON body when the query carries none. Relayed calls carry the
// event type header.
func (s *Server) UpdateKitchenStatus(c *gin.Context) {
	status := strings.TrimSpace(c.Query("status"))
	reason := strings.TrimSpace(c.Query("reason"))
	if status == "" {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err == nil && len(raw) > 0 {
			if body, err := jsonfield.Parse(raw); err == nil {
				status = body.String("status")
				if reason == "" {
					reason = body.String("reason", "cancel_reason")
				}
			}
		}
	}
	if status == "" {
		AbortWithError(c, newValidationError("status", "required", "is required"))
		return
	}

	result, err := s.kitchenSvc.UpdateStatus(c.Request.Context(), kitchendomain.UpdateRequest{
		OrderID:   c.Param("order_id"),
		Status:    kitchendomain.Status(strings.ToLower(status)),
		Reason:    reason,
		EventType: strings.TrimSpace(c.GetHeader(outboxdomain.HeaderEventType)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	message := fmt.Sprintf("Order %s is %s", result.OrderID, result.Status)
	if !result.Applied {
		message = fmt.Sprintf("Order %s already %s", result.OrderID, result.Status)
	}
	respond(c, message, result)
}

func (s *Server) KitchenItemCancelled(c *gin.Context) {
	var event kitchendomain.ItemCancelledEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	applied, err := s.kitchenSvc.ApplyItemCancelled(c.Request.Context(), event)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	message := fmt.Sprintf("Order %s items updated", event.OrderID)
	if !applied {
		message = "Item cancellation already applied"
	}
	respond(c, message, gin.H{"order_id": event.OrderID, "applied": applied})
}

func (s *Server) SyncKitchenOrder(c *gin.Context) {
	result, err := s.kitchenSvc.Sync(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("Order %s synced", result.OrderID), result)
}

func (s *Server) ListKitchenOrders(c *gin.Context) {
	orders, err := s.kitchenSvc.ListOrders(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("%d orders", len(orders)), gin.H{"orders": orders})
}

func (s *Server) KitchenDuration(c *gin.Context) {
	durations, err := s.kitchenSvc.Duration(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, "Order durations in seconds", durations)
}

func (s *Server) KitchenStatus(c *gin.Context) {
	open, err := s.kitchenSvc.IsOpen(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, kitchenStateMessage(open), gin.H{"is_open": open})
}

type kitchenStatusRequest struct {
	IsOpen *bool `json:"is_open" binding:"required"`
}

func (s *Server) SetKitchenStatus(c *gin.Context) {
	var req kitchenStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	state, err := s.kitchenSvc.SetOpen(c.Request.Context(), *req.IsOpen)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, kitchenStateMessage(state.IsOpen), state)
}

func kitchenStateMessage(open bool) string {
	if open {
		return "Kitchen is open"
	}
	return "Kitchen is closed"
}
