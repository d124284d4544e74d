package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qabase/qabase/backend/go-services/internal/content"
	"github.com/qabase/qabase/backend/go-services/internal/content/service"
	"github.com/qabase/qabase/backend/go-services/pkg/logger"
)

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// RegisterContentRoutes mounts the content, reference and section endpoints
// the frontend consumes.
func RegisterContentRoutes(r gin.IRouter, svc service.Service) {
	api := r.Group("/api")

	api.GET("/contents", func(c *gin.Context) {
		list, err := svc.List(c.Request.Context(), content.Filter{
			Category:    c.Query("category"),
			Tag:         c.Query("tag"),
			MessageType: c.Query("messageType"),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	api.POST("/contents", func(c *gin.Context) {
		var in service.Input
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := svc.Create(c.Request.Context(), in)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	})

	api.GET("/contents/:id", func(c *gin.Context) {
		rec, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	api.PUT("/contents/:id", func(c *gin.Context) {
		var in service.Input
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := svc.Update(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	api.DELETE("/contents/:id", func(c *gin.Context) {
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.GET("/categories", func(c *gin.Context) {
		list, err := svc.Categories(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	api.POST("/categories", func(c *gin.Context) {
		var req struct {
			Category string `json:"category"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.CreateCategory(c.Request.Context(), req.Category); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"category": req.Category})
	})

	api.DELETE("/categories/:name", func(c *gin.Context) {
		if err := svc.DeleteCategory(c.Request.Context(), c.Param("name")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.GET("/tags", func(c *gin.Context) {
		list, err := svc.Tags(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	api.GET("/sections", func(c *gin.Context) {
		sections, err := svc.Sections(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sections)
	})

	api.PUT("/tags/:tag/section", func(c *gin.Context) {
		var req struct {
			Section string `json:"section"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tag := c.Param("tag")
		if err := svc.AssignSection(c.Request.Context(), tag, req.Section); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tag": tag, "section": req.Section})
	})

	api.GET("/messagetypes", func(c *gin.Context) {
		list, err := svc.MessageTypes(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	api.GET("/originalposts", func(c *gin.Context) {
		list, err := svc.OriginalPosts(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})
}
