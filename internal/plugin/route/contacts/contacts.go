package contacts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/workstream-im/chat-service/internal/region"
	registrystore "github.com/workstream-im/chat-service/internal/registry/store"
	"github.com/workstream-im/chat-service/internal/security"
)

// MountRoutes mounts contact-edge routes on the given router. Contacts are
// plain (user, contact) edges consumed by the direct-conversation gate.
func MountRoutes(r *gin.Engine, router *region.Router, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/contacts", func(c *gin.Context) {
		listContacts(c, router)
	})
	g.PUT("/contacts/:userId", func(c *gin.Context) {
		addContact(c, router)
	})
	g.DELETE("/contacts/:userId", func(c *gin.Context) {
		removeContact(c, router)
	})
}

func listContacts(c *gin.Context, router *region.Router) {
	p := security.GetPrincipal(c)
	st, err := router.Resolve(p)
	if err != nil {
		handleError(c, err)
		return
	}

	ids, err := st.ListContactIDs(c.Request.Context(), p.ID)
	if err != nil {
		handleError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"data": ids})
}

func addContact(c *gin.Context, router *region.Router) {
	p := security.GetPrincipal(c)
	contactID := c.Param("userId")
	if contactID == "" || contactID == p.ID {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid contact user id"})
		return
	}
	st, err := router.Resolve(p)
	if err != nil {
		handleError(c, err)
		return
	}

	if err := st.AddContact(c.Request.Context(), p.ID, contactID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func removeContact(c *gin.Context, router *region.Router) {
	p := security.GetPrincipal(c)
	st, err := router.Resolve(p)
	if err != nil {
		handleError(c, err)
		return
	}

	if err := st.RemoveContact(c.Request.Context(), p.ID, c.Param("userId")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Helpers ---

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.Is(err, region.ErrUnknownRegion):
		c.JSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "error": "unknown principal region"})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
