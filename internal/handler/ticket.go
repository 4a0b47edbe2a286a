package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
	"github.com/psds-microservice/ticket-bridge/internal/model"
	"github.com/psds-microservice/ticket-bridge/internal/service"
)

const maxLimit = 200

// TicketHandler — read-only API транскриптов.
type TicketHandler struct {
	svc service.TicketServicer
}

func NewTicketHandler(svc service.TicketServicer) *TicketHandler {
	return &TicketHandler{svc: svc}
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	t, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TicketHandler) List(c *gin.Context) {
	var filter service.ListFilter
	if v := c.Query("type"); v != "" {
		t, err := model.ParseTicketType(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
			return
		}
		filter.Type = t
	}
	switch c.Query("status") {
	case "":
	case "open":
		open := true
		filter.Open = &open
	case "closed":
		open := false
		filter.Open = &open
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be open or closed"})
		return
	}
	filter.CreatorUserID = c.Query("creator_id")

	limit := 50
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	items, total, err := h.svc.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}
	if items == nil {
		items = []model.Ticket{}
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": items,
		"total":   total,
	})
}
