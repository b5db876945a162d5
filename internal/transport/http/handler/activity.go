package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mycareerbox/internal/model"
	"mycareerbox/internal/transport/http/middleware"
	"mycareerbox/internal/transport/http/response"
)

type ActivityLister interface {
	ListByUser(ctx context.Context, email string, limit int) ([]model.RecordEvent, error)
}

type ActivityHandler struct {
	events ActivityLister
}

func NewActivityHandler(events ActivityLister) *ActivityHandler {
	return &ActivityHandler{events: events}
}

// List returns the signed-in user's most recent record events.
func (h *ActivityHandler) List(c *gin.Context) {
	sess := middleware.CurrentSession(c)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.events.ListByUser(c.Request.Context(), sess.UserEmail, limit)
	if err != nil {
		log.Printf("list activity for %s failed: %v", sess.UserEmail, err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list activity failed")
		return
	}
	if events == nil {
		events = []model.RecordEvent{}
	}

	response.OK(c, gin.H{
		"email":  sess.UserEmail,
		"events": events,
	})
}
