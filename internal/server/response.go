package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Envelope is the business response shared by every service.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data"`
}

func successEnvelope(message string, data any) Envelope {
	return Envelope{Status: statusSuccess, Message: message, Data: data}
}

func errorEnvelope(code, message string, data any) Envelope {
	return Envelope{Status: statusError, Message: message, Code: code, Data: data}
}

func respond(c *gin.Context, message string, data any) {
	c.Set("business_status", statusSuccess)
	c.JSON(http.StatusOK, successEnvelope(message, data))
}

// reject answers a refusal decided by the handler itself.
func reject(c *gin.Context, code, message string, data any) {
	c.Set("business_status", statusError+":"+code)
	c.JSON(http.StatusOK, errorEnvelope(code, message, data))
}

// tagOrder exposes the order a request is about to the request logger and
// tracer when it does not appear in the path.
func tagOrder(c *gin.Context, orderID string) {
	if orderID != "" {
		c.Set("order_id", orderID)
	}
}
