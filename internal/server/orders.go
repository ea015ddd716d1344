package server

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	"github.com/smallbiznis/pantry/pkg/jsonfield"
)

func (s *Server) registerOrderRoutes() {
	r := s.engine
	r.POST("/create_order", s.CreateOrder)
	r.POST("/custom_order", s.CustomOrder)
	r.POST("/cancel_order", s.CancelOrder)
	r.POST("/cancel_kitchen", s.CancelKitchen)
	r.POST("/cancel_order_item", s.CancelOrderItem)
	r.GET("/order_status/:order_id", s.OrderStatus)
	r.GET("/order/status/:queue_number", s.OrderStatusByQueue)
	r.GET("/today_orders", s.TodayOrders)
	r.GET("/order", s.ListOrders)

	r.GET("/rooms", s.ListRooms)
	r.POST("/rooms", s.CreateRoom)
	r.DELETE("/rooms/:id", s.DeactivateRoom)

	r.POST("/internal/update_status/:order_id", s.ApplyKitchenStatus)

	admin := r.Group("/admin")
	admin.GET("/stock_consumption_status", s.StockConsumptionStatus)
	admin.POST("/reconcile_stock", s.ReconcileStock)
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req orderdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	tagOrder(c, req.OrderID)
	result, err := s.orderSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	tagOrder(c, result.OrderID)
	respond(c, result.Message, result)
}

func (s *Server) CustomOrder(c *gin.Context) {
	var req orderdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	tagOrder(c, req.OrderID)
	result, err := s.orderSvc.CreateCustom(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	tagOrder(c, result.OrderID)
	respond(c, result.Message, result)
}

func (s *Server) CancelOrder(c *gin.Context) {
	var req orderdomain.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	tagOrder(c, req.OrderID)
	result, err := s.orderSvc.CancelOrder(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, result.Message, result)
}

func (s *Server) CancelKitchen(c *gin.Context) {
	var req orderdomain.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	tagOrder(c, req.OrderID)
	result, err := s.orderSvc.CancelKitchen(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, result.Message, result)
}

// CancelOrderItem accepts item_id as a number or a string.
func (s *Server) CancelOrderItem(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	body, err := jsonfield.Parse(raw)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := orderdomain.CancelItemRequest{
		OrderID:  body.String("order_id"),
		MenuName: body.String("menu_name"),
		Reason:   body.String("reason", "cancel_reason"),
	}
	if rawID := body.String("item_id"); rawID != "" {
		id, err := snowflake.ParseString(rawID)
		if err != nil || id == 0 {
			AbortWithError(c, orderdomain.Reject(orderdomain.ErrItemSelector, "item_id must be a number.", nil))
			return
		}
		req.ItemID = id
	}

	tagOrder(c, req.OrderID)
	result, err := s.orderSvc.CancelItem(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, result.Message, result)
}

func (s *Server) OrderStatus(c *gin.Context) {
	view, err := s.orderSvc.Status(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("Order %s is %s", view.OrderID, view.Status), view)
}

func (s *Server) OrderStatusByQueue(c *gin.Context) {
	queue, err := strconv.Atoi(strings.TrimSpace(c.Param("queue_number")))
	if err != nil {
		AbortWithError(c, newValidationError("queue_number", "invalid_int", "must be a number"))
		return
	}
	view, err := s.orderSvc.StatusByQueue(c.Request.Context(), queue)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("Queue %d is %s", view.QueueNumber, view.Status), view)
}

func (s *Server) TodayOrders(c *gin.Context) {
	view, err := s.orderSvc.Today(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("%d orders on %s", view.TotalOrders, view.Date), view)
}

func (s *Server) ListOrders(c *gin.Context) {
	orders, err := s.orderSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("%d orders", len(orders)), gin.H{
		"orders": orders,
		"total":  len(orders),
	})
}

func (s *Server) ListRooms(c *gin.Context) {
	rooms, err := s.orderSvc.ListRooms(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("%d rooms", len(rooms)), gin.H{"rooms": rooms})
}

type createRoomRequest struct {
	Name string `json:"name" binding:"required,notblank"`
}

func (s *Server) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	result, err := s.orderSvc.CreateRoom(c.Request.Context(), req.Name)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	message := fmt.Sprintf("Room %s created", result.Room.Name)
	if result.Reactivated {
		message = fmt.Sprintf("Room %s reactivated", result.Room.Name)
	}
	respond(c, message, result)
}

func (s *Server) DeactivateRoom(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, orderdomain.ErrRoomNotFound)
		return
	}
	room, err := s.orderSvc.DeactivateRoom(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("Room %s deactivated", room.Name), room)
}

// ApplyKitchenStatus receives order_status_changed from the kitchen relay.
func (s *Server) ApplyKitchenStatus(c *gin.Context) {
	var req orderdomain.StatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.OrderID = c.Param("order_id")

	applied, err := s.orderSvc.ApplyKitchenStatus(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	message := fmt.Sprintf("Order %s is %s", req.OrderID, req.Status)
	if !applied {
		message = "Status update already applied"
	}
	respond(c, message, gin.H{
		"order_id": req.OrderID,
		"status":   req.Status,
		"applied":  applied,
	})
}

func (s *Server) StockConsumptionStatus(c *gin.Context) {
	counts, err := s.orderSvc.StockStatus(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("%d orders tracked", counts.Total), counts)
}

func (s *Server) ReconcileStock(c *gin.Context) {
	result, err := s.orderSvc.ReconcileStock(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, "Stock reconciled", result)
}
