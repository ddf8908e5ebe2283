package messages

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/workstream-im/chat-service/internal/messages"
	"github.com/workstream-im/chat-service/internal/model"
	"github.com/workstream-im/chat-service/internal/region"
	registrystore "github.com/workstream-im/chat-service/internal/registry/store"
	"github.com/workstream-im/chat-service/internal/security"
)

// MountRoutes mounts message routes on the given router. Called after store
// initialization so the regional backends are available.
func MountRoutes(r *gin.Engine, svc *messages.Service, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/conversations/:conversationId/messages", func(c *gin.Context) {
		sendMessage(c, svc)
	})
	g.GET("/conversations/:conversationId/messages", func(c *gin.Context) {
		listMessages(c, svc)
	})
	g.PATCH("/messages/:messageId", func(c *gin.Context) {
		editMessage(c, svc)
	})
	g.DELETE("/messages/:messageId", func(c *gin.Context) {
		deleteMessage(c, svc)
	})
	g.POST("/messages/:messageId/recall", func(c *gin.Context) {
		recallMessage(c, svc)
	})
	g.PUT("/messages/:messageId/reactions/:emoji", func(c *gin.Context) {
		addReaction(c, svc)
	})
	g.DELETE("/messages/:messageId/reactions/:emoji", func(c *gin.Context) {
		removeReaction(c, svc)
	})
	g.PUT("/messages/:messageId/hide", func(c *gin.Context) {
		hideMessage(c, svc)
	})
	g.DELETE("/messages/:messageId/hide", func(c *gin.Context) {
		unhideMessage(c, svc)
	})
}

func sendMessage(c *gin.Context, svc *messages.Service) {
	p := security.GetPrincipal(c)
	convID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "conversation not found"})
		return
	}

	var req struct {
		Content  string         `json:"content"`
		Type     string         `json:"type"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := svc.Send(c.Request.Context(), p, messages.SendRequest{
		ConversationID: convID,
		Content:        req.Content,
		Type:           model.MessageType(req.Type),
		Metadata:       req.Metadata,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func listMessages(c *gin.Context, svc *messages.Service) {
	p := security.GetPrincipal(c)
	convID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "conversation not found"})
		return
	}

	limit := queryInt(c, "limit", 50)
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid before timestamp"})
			return
		}
		before = &t
	}

	msgs, err := svc.List(c.Request.Context(), p, convID, before, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

func editMessage(c *gin.Context, svc *messages.Service) {
	p := security.GetPrincipal(c)
	msgID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "message not found"})
		return
	}

	var req struct {
		Content  *string        `json:"content"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := svc.Edit(c.Request.Context(), p, msgID, messages.EditRequest{
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func deleteMessage(c *gin.Context, svc *messages.Service) {
	p := security.GetPrincipal(c)
	msgID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "message not found"})
		return
	}

	msg, err := svc.Delete(c.Request.Context(), p, msgID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func recallMessage(c *gin.Context, svc *messages.Service) {
	p := security.GetPrincipal(c)
	msgID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "message not found"})
		return
	}

	msg, err := svc.Recall(c.Request.Context(), p, msgID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func addReaction(c *gin.Context, svc *messages.Service) {
	p := security.GetPrincipal(c)
	msgID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "message not found"})
		return
	}

	msg, err := svc.AddReaction(c.Request.Context(), p, msgID, c.Param("emoji"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func removeReaction(c *gin.Context, svc *messages.Service) {
	p := security.GetPrincipal(c)
	msgID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "message not found"})
		return
	}

	msg, err := svc.RemoveReaction(c.Request.Context(), p, msgID, c.Param("emoji"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func hideMessage(c *gin.Context, svc *messages.Service) {
	p := security.GetPrincipal(c)
	msgID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "message not found"})
		return
	}

	if err := svc.Hide(c.Request.Context(), p, msgID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func unhideMessage(c *gin.Context, svc *messages.Service) {
	p := security.GetPrincipal(c)
	msgID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "message not found"})
		return
	}

	if err := svc.Unhide(c.Request.Context(), p, msgID); err != nil {
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
	var recallWindow *registrystore.RecallWindowError

	switch {
	case errors.Is(err, region.ErrUnknownRegion):
		c.JSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "error": "unknown principal region"})
	case errors.As(err, &recallWindow):
		c.JSON(http.StatusGone, gin.H{"code": "recall_window_expired", "error": err.Error()})
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

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return def
	}
	return i
}
