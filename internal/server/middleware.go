package server

import (
	"strings"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/pantry/internal/config"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
)

// CORS allows every origin outside production. In production only the
// configured origins are allowed, and none when the list is empty.
func CORS(cfg config.Config) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	origins := make([]string, 0, len(cfg.CORSAllowOrigins))
	wildcard := false
	for _, origin := range cfg.CORSAllowOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			wildcard = true
		default:
			origins = append(origins, origin)
		}
	}
	switch {
	case !cfg.IsProduction() || (wildcard && len(origins) == 0):
		corsConfig.AllowAllOrigins = true
	default:
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-Performed-By", outboxdomain.HeaderEventType, outboxdomain.HeaderEventID)
	corsConfig.AddExposeHeaders("Content-Length")
	return cors.New(corsConfig)
}

var registerValidators sync.Once

// RegisterValidators adds the notblank rule to gin's validator: the value
// must contain something other than whitespace.
func RegisterValidators() {
	registerValidators.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
}

// performer is the operator recorded in stock history.
func performer(c *gin.Context) string {
	if name := strings.TrimSpace(c.GetHeader("X-Performed-By")); name != "" {
		return name
	}
	return ""
}
