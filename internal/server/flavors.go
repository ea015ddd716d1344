package server

import (
	"fmt"

	"github.com/gin-gonic/gin"
	flavordomain "github.com/smallbiznis/pantry/internal/flavor/domain"
)

func (s *Server) registerFlavorRoutes() {
	r := s.engine
	r.GET("/flavors", s.ListFlavorNames)
	r.GET("/list_flavor_mappings", s.ListFlavorMappings)
	r.POST("/add_flavor_mapping", s.CreateFlavorMapping)
	r.PUT("/update_flavor_mapping/:id", s.UpdateFlavorMapping)
	r.DELETE("/delete_flavor_mapping/:id", s.DeleteFlavorMapping)
}

func (s *Server) ListFlavorNames(c *gin.Context) {
	names, err := s.flavorSvc.Names(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("%d flavors", len(names)), gin.H{"flavors": names})
}

func (s *Server) ListFlavorMappings(c *gin.Context) {
	mappings, err := s.flavorSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("%d flavor mappings", len(mappings)), gin.H{
		"mappings": mappings,
		"total":    len(mappings),
	})
}

func (s *Server) CreateFlavorMapping(c *gin.Context) {
	var req flavordomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	view, err := s.flavorSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("Flavor %s mapped to %s", view.FlavorName, view.IngredientName), view)
}

func (s *Server) UpdateFlavorMapping(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, flavordomain.ErrInvalidID)
		return
	}
	var req flavordomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}
	req.ID = id

	view, err := s.flavorSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, fmt.Sprintf("Flavor mapping %s updated", view.FlavorName), view)
}

func (s *Server) DeleteFlavorMapping(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, flavordomain.ErrInvalidID)
		return
	}
	if err := s.flavorSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, "Flavor mapping deleted", gin.H{"id": id})
}
