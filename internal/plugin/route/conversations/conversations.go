package conversations

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/workstream-im/chat-service/internal/directory"
	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/region"
	registrystore "github.com/workstream-im/chat-service/internal/registry/store"
	"github.com/workstream-im/chat-service/internal/security"
)

// MountRoutes mounts conversation directory routes on the given router.
// Called after store initialization so the regional backends are available.
func MountRoutes(r *gin.Engine, svc *directory.Service, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/conversations", func(c *gin.Context) {
		listConversations(c, svc)
	})
	g.POST("/conversations", func(c *gin.Context) {
		createConversation(c, svc)
	})
	g.PUT("/conversations/:conversationId/pin", func(c *gin.Context) {
		setPinned(c, svc, true)
	})
	g.DELETE("/conversations/:conversationId/pin", func(c *gin.Context) {
		setPinned(c, svc, false)
	})
	g.PUT("/conversations/:conversationId/hide", func(c *gin.Context) {
		setHidden(c, svc, true)
	})
	g.DELETE("/conversations/:conversationId/hide", func(c *gin.Context) {
		setHidden(c, svc, false)
	})
	g.PUT("/conversations/:conversationId/read", func(c *gin.Context) {
		markRead(c, svc)
	})
	g.DELETE("/conversations/:conversationId/membership", func(c *gin.Context) {
		leave(c, svc)
	})
}

func listConversations(c *gin.Context, svc *directory.Service) {
	p := security.GetPrincipal(c)

	summaries, err := svc.ListConversations(c.Request.Context(), p)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summaries})
}

func createConversation(c *gin.Context, svc *directory.Service) {
	p := security.GetPrincipal(c)
	var req struct {
		Type      string   `json:"type"`
		Name      *string  `json:"name"`
		IsPrivate bool     `json:"isPrivate"`
		MemberIds []string `json:"memberIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != nil && len(*req.Name) > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "name exceeds maximum length"})
		return
	}

	summary, err := svc.CreateConversation(c.Request.Context(), p, directory.CreateConversationRequest{
		Type:      model.ConversationType(req.Type),
		Name:      req.Name,
		IsPrivate: req.IsPrivate,
		MemberIDs: req.MemberIds,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func setPinned(c *gin.Context, svc *directory.Service, pinned bool) {
	p := security.GetPrincipal(c)
	convID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "conversation not found"})
		return
	}

	if err := svc.SetPinned(c.Request.Context(), p, convID, pinned); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func setHidden(c *gin.Context, svc *directory.Service, hidden bool) {
	p := security.GetPrincipal(c)
	convID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "conversation not found"})
		return
	}

	if err := svc.SetHidden(c.Request.Context(), p, convID, hidden); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func markRead(c *gin.Context, svc *directory.Service) {
	p := security.GetPrincipal(c)
	convID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "conversation not found"})
		return
	}

	if err := svc.MarkRead(c.Request.Context(), p, convID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func leave(c *gin.Context, svc *directory.Service) {
	p := security.GetPrincipal(c)
	convID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "conversation not found"})
		return
	}

	if err := svc.Leave(c.Request.Context(), p, convID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Helpers ---

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.Is(err, region.ErrUnknownRegion):
		c.JSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "error": "unknown principal region"})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
