package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/personly/channels-server/internal/core"
	"github.com/personly/channels-server/internal/store"
	"github.com/personly/channels-server/internal/utils"
)

// ChannelHandlers provides REST handlers for the channel surface: listing
// and history for members, channel administration and moderation for admins.
type ChannelHandlers struct {
	store     store.Store
	lifecycle *core.Lifecycle
	hub       *core.Hub
	log       *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(st store.Store, lifecycle *core.Lifecycle, hub *core.Hub, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{
		store:     st,
		lifecycle: lifecycle,
		hub:       hub,
		log:       logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ChannelResponse represents a channel in API responses.
type ChannelResponse struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Type            string         `json:"type"`
	Category        string         `json:"category,omitempty"`
	IsPrivate       bool           `json:"isPrivate"`
	AllowedPersonas []string       `json:"allowedPersonas,omitempty"`
	SlowMode        store.SlowMode `json:"slowMode"`
	LastActivity    string         `json:"lastActivity"`
	CreatedAt       string         `json:"createdAt"`
}

func channelResponse(ch *store.Channel) ChannelResponse {
	return ChannelResponse{
		ID:              ch.ID,
		Name:            ch.Name,
		Type:            string(ch.Type),
		Category:        ch.Category,
		IsPrivate:       ch.IsPrivate,
		AllowedPersonas: ch.AllowedPersonas,
		SlowMode:        ch.SlowMode,
		LastActivity:    ch.LastActivity.Format(time.RFC3339),
		CreatedAt:       ch.CreatedAt.Format(time.RFC3339),
	}
}

// ListChannels lists channels the caller belongs to.
// GET /api/channels
func (h *ChannelHandlers) ListChannels(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	channels, err := h.store.ListChannelsForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", claims.UserID).Msg("failed to list channels")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		response = append(response, channelResponse(ch))
	}
	c.JSON(http.StatusOK, response)
}

// ListMessages returns paginated channel history for members.
// GET /api/channels/:id/messages?limit=&before=
func (h *ChannelHandlers) ListMessages(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	channelID := c.Param("id")

	member, err := h.store.IsMember(c.Request.Context(), channelID, claims.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("channel_id", channelID).Msg("membership lookup")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a channel member"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	messages, err := h.lifecycle.History(c.Request.Context(), channelID, limit, c.Query("before"))
	if err != nil {
		writeCoreError(c, err)
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, messageResponse(msg))
	}
	c.JSON(http.StatusOK, response)
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID         string              `json:"id"`
	ChannelID  string              `json:"channelId"`
	AuthorID   string              `json:"authorId"`
	AuthorName string              `json:"authorName,omitempty"`
	Content    string              `json:"content"`
	CreatedAt  string              `json:"createdAt"`
	Edited     bool                `json:"edited,omitempty"`
	EditedAt   string              `json:"editedAt,omitempty"`
	Reactions  map[string][]string `json:"reactions,omitempty"`
}

func messageResponse(msg *store.Message) MessageResponse {
	resp := MessageResponse{
		ID:         msg.ID,
		ChannelID:  msg.ChannelID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt.Format(time.RFC3339),
		Edited:     msg.Edited,
		Reactions:  msg.Reactions,
	}
	if msg.EditedAt != nil {
		resp.EditedAt = msg.EditedAt.Format(time.RFC3339)
	}
	return resp
}

// CreateChannelRequest represents the create channel request body.
type CreateChannelRequest struct {
	Name            string         `json:"name" binding:"required,min=1,max=64"`
	Type            string         `json:"type"`
	Category        string         `json:"category"`
	IsPrivate       bool           `json:"isPrivate"`
	AllowedPersonas []string       `json:"allowedPersonas"`
	SlowMode        store.SlowMode `json:"slowMode"`
}

// CreateChannel handles admin channel creation.
// POST /api/admin/channels
func (h *ChannelHandlers) CreateChannel(c *gin.Context) {
	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	chType := store.ChannelType(req.Type)
	switch chType {
	case "":
		chType = store.ChannelTypeText
	case store.ChannelTypeText, store.ChannelTypeVoice, store.ChannelTypeAnnouncement:
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid channel type"})
		return
	}

	ch := &store.Channel{
		ID:              utils.NewID(),
		Name:            req.Name,
		Type:            chType,
		Category:        req.Category,
		IsPrivate:       req.IsPrivate,
		AllowedPersonas: req.AllowedPersonas,
		SlowMode:        req.SlowMode,
	}
	if err := h.store.CreateChannel(c.Request.Context(), ch); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "channel with this name already exists"})
			return
		}
		h.log.Error().Err(err).Str("channel_name", req.Name).Msg("failed to create channel")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("channel_id", ch.ID).Str("channel_name", ch.Name).Msg("channel created")
	c.JSON(http.StatusCreated, channelResponse(ch))
}

// AddMemberRequest represents the add member request body.
type AddMemberRequest struct {
	UserID string   `json:"userId" binding:"required"`
	Roles  []string `json:"roles"`
}

// AddMember adds a user to a channel.
// POST /api/admin/channels/:id/members
func (h *ChannelHandlers) AddMember(c *gin.Context) {
	channelID := c.Param("id")

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if _, err := h.store.GetChannel(c.Request.Context(), channelID); err != nil {
		writeStoreError(c, h.log, err, "channel lookup")
		return
	}

	if err := h.store.AddMember(c.Request.Context(), channelID, req.UserID, req.Roles); err != nil {
		h.log.Error().Err(err).Str("channel_id", channelID).Msg("failed to add member")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMember removes a user from a channel.
// DELETE /api/admin/channels/:id/members/:userId
func (h *ChannelHandlers) RemoveMember(c *gin.Context) {
	err := h.store.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("userId"))
	if err != nil {
		writeStoreError(c, h.log, err, "remove member")
		return
	}
	c.Status(http.StatusNoContent)
}

// SetSlowMode updates a channel's slow-mode configuration.
// PUT /api/admin/channels/:id/slowmode
func (h *ChannelHandlers) SetSlowMode(c *gin.Context) {
	var sm store.SlowMode
	if err := c.ShouldBindJSON(&sm); err != nil || sm.DelaySeconds < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.store.SetSlowMode(c.Request.Context(), c.Param("id"), sm); err != nil {
		writeStoreError(c, h.log, err, "set slow mode")
		return
	}
	c.Status(http.StatusNoContent)
}

// ModerateDelete removes a message through the administrative path. The
// lifecycle engine applies the same author-or-admin predicate as the socket
// path, and connected sessions observe the same message:delete broadcast.
// DELETE /api/admin/messages/:id
func (h *ChannelHandlers) ModerateDelete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	msg, err := h.lifecycle.Delete(c.Request.Context(), identityFromClaims(claims), c.Param("id"))
	if err != nil {
		writeCoreError(c, err)
		return
	}

	h.hub.Emit(msg.ChannelID, &core.Event{
		Kind:      core.EventMessageDelete,
		Channel:   msg.ChannelID,
		MessageID: msg.ID,
	})

	h.log.Info().
		Str("message_id", msg.ID).
		Str("channel_id", msg.ChannelID).
		Str("moderator_id", claims.UserID).
		Msg("message removed by moderator")
	c.Status(http.StatusNoContent)
}

func writeCoreError(c *gin.Context, err error) {
	ce := core.AsCoreError(err)
	status := http.StatusInternalServerError
	switch ce.Code {
	case core.ErrCodeBadRequest:
		status = http.StatusBadRequest
	case core.ErrCodeForbidden:
		status = http.StatusForbidden
	case core.ErrCodeNotFound:
		status = http.StatusNotFound
	case core.ErrCodeRateLimited:
		status = http.StatusTooManyRequests
	}
	c.JSON(status, ErrorResponse{Error: ce.Message})
}

func writeStoreError(c *gin.Context, logger *zerolog.Logger, err error, op string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
		return
	}
	logger.Error().Err(err).Msg(op)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
