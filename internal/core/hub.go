package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/personly/channels-server/internal/metrics"
	"github.com/personly/channels-server/internal/store"
)

type clientCommand struct {
	client *Client
	cmd    *Command
}

type emitRequest struct {
	channel string
	event   *Event
}

// Hub owns every live session and every room. All session registration, room
// mutation and fan-out happen on the single Run loop, which is what gives
// message events their per-channel ordering guarantee.
type Hub struct {
	log       zerolog.Logger
	presence  *PresenceRegistry
	dir       *Directory
	lifecycle *Lifecycle

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	emits      chan emitRequest

	// Loop-owned state; never touched outside Run.
	clients  map[*Client]struct{}
	sessions map[string]*Client // user id -> active session
	rooms    map[string]*Room
}

// NewHub creates a hub. A nil logger disables hub logging.
func NewHub(dir *Directory, lifecycle *Lifecycle, presence *PresenceRegistry, logger *zerolog.Logger) *Hub {
	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}
	if presence == nil {
		presence = NewPresenceRegistry()
	}
	return &Hub{
		log:        lg,
		presence:   presence,
		dir:        dir,
		lifecycle:  lifecycle,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 64),
		emits:      make(chan emitRequest, 16),
		clients:    make(map[*Client]struct{}),
		sessions:   make(map[string]*Client),
		rooms:      make(map[string]*Room),
	}
}

// Presence exposes the registry for transport-level snapshots.
func (h *Hub) Presence() *PresenceRegistry {
	return h.presence
}

// RegisterClient hands a freshly authenticated session to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient tears a session down. Safe to call more than once and
// must be called even on abnormal connection loss.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// Emit broadcasts an event to a channel room from outside the run loop.
// Used by the REST moderation path after a successful lifecycle call.
func (h *Hub) Emit(channelID string, event *Event) {
	h.emits <- emitRequest{channel: channelID, event: event}
}

// Run processes registration, commands and fan-out until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.handleRegister(ctx, c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case cc := <-h.commands:
			h.handleCommand(ctx, cc.client, cc.cmd)
		case req := <-h.emits:
			h.emitToRoom(req.channel, req.event)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	// At most one active session per user: a reconnect replaces the old
	// session without an offline transition in between.
	if old, ok := h.sessions[c.Identity.UserID]; ok && old != c {
		h.dropClient(old)
	}

	h.clients[c] = struct{}{}
	h.sessions[c.Identity.UserID] = c

	go h.pumpCommands(ctx, c)

	pr := h.presence.SetStatus(c.Identity, StatusOnline)

	h.send(c, &Event{Kind: EventUserInfo, Presence: &pr})
	h.send(c, &Event{Kind: EventUsersInitial, Roster: h.presence.Snapshot()})
	h.broadcastExcept(&Event{Kind: EventUserStatus, Presence: &pr}, c)

	// Subscribe the session to every channel it already belongs to, so
	// broadcasts arrive without an explicit join. History is only replayed
	// on explicit channel:join.
	channels, err := h.dir.MemberChannels(ctx, c.Identity.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", c.Identity.UserID).Msg("list member channels")
	}
	for _, ch := range channels {
		h.room(ch.ID).AddClient(c)
		c.Channels[ch.ID] = struct{}{}
	}

	h.log.Debug().
		Str("user_id", c.Identity.UserID).
		Int("channels", len(channels)).
		Msg("session registered")
}

// pumpCommands forwards a session's commands into the hub loop. It exits when
// the session is dropped, not only when Commands is closed, so disconnects do
// not strand the goroutine.
func (h *Hub) pumpCommands(ctx context.Context, c *Client) {
	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			select {
			case h.commands <- clientCommand{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.dropClient(c)

	// Only the session that still owns the presence entry may take the user
	// offline; a replaced session must not shadow its successor.
	if h.sessions[c.Identity.UserID] != nil {
		return
	}
	if pr, ok := h.presence.MarkOffline(c.Identity.UserID); ok {
		h.broadcastExcept(&Event{Kind: EventUserStatus, Presence: &pr}, c)
	}

	h.log.Debug().Str("user_id", c.Identity.UserID).Msg("session closed")
}

// dropClient removes the session from all loop state and closes its event
// stream, which ends the transport write loop.
func (h *Hub) dropClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if h.sessions[c.Identity.UserID] == c {
		delete(h.sessions, c.Identity.UserID)
	}
	for channelID := range c.Channels {
		if room, ok := h.rooms[channelID]; ok {
			room.RemoveClient(c)
			if room.Empty() {
				delete(h.rooms, channelID)
			}
		}
	}
	close(c.done)
	close(c.Events)
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	switch cmd.Kind {
	case CommandJoinChannel:
		h.handleJoin(ctx, c, cmd.Channel)
	case CommandLeaveChannel:
		h.handleLeave(c, cmd.Channel)
	case CommandSendMessage:
		h.handleSend(ctx, c, cmd)
	case CommandEditMessage:
		h.handleEdit(ctx, c, cmd)
	case CommandDeleteMessage:
		h.handleDelete(ctx, c, cmd)
	case CommandReactMessage:
		h.handleReact(ctx, c, cmd)
	case CommandTypingStart:
		h.handleTyping(c, cmd.Channel, EventTypingStart)
	case CommandTypingStop:
		h.handleTyping(c, cmd.Channel, EventTypingStop)
	case CommandSetStatus:
		h.handleSetStatus(c, cmd.Status)
	default:
		h.sendError(c, errBadRequest("unknown command"))
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, channelID string) {
	if channelID == "" {
		h.sendError(c, errBadRequest("channel is required"))
		return
	}

	ok, err := h.dir.CanJoin(ctx, channelID, c.Identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.sendError(c, errNotFound("channel not found"))
			return
		}
		h.log.Error().Err(err).Str("channel_id", channelID).Msg("join authorization")
		h.sendError(c, AsCoreError(err))
		return
	}
	if !ok {
		h.sendError(c, errForbidden("not a channel member"))
		return
	}

	h.room(channelID).AddClient(c)
	c.Channels[channelID] = struct{}{}

	history, err := h.lifecycle.History(ctx, channelID, 0, "")
	if err != nil {
		h.log.Error().Err(err).Str("channel_id", channelID).Msg("load history")
		h.sendError(c, AsCoreError(err))
		return
	}
	h.send(c, &Event{Kind: EventChannelMessages, Channel: channelID, Messages: history})

	if len(history) > 0 {
		last := history[len(history)-1]
		if err := h.dir.MarkRead(ctx, channelID, c.Identity.UserID, last.ID); err != nil {
			h.log.Warn().Err(err).Str("channel_id", channelID).Msg("mark read")
		}
	}
}

func (h *Hub) handleLeave(c *Client, channelID string) {
	// Idempotent: leaving a channel the session never joined is a no-op.
	if room, ok := h.rooms[channelID]; ok {
		room.RemoveClient(c)
		if room.Empty() {
			delete(h.rooms, channelID)
		}
	}
	delete(c.Channels, channelID)
}

func (h *Hub) handleSend(ctx context.Context, c *Client, cmd *Command) {
	if _, joined := c.Channels[cmd.Channel]; !joined {
		h.sendError(c, errForbidden("not joined to channel"))
		return
	}

	msg, err := h.lifecycle.Create(ctx, c.Identity, cmd.Channel, cmd.Content)
	if err != nil {
		h.logRejection(err, c, "create message")
		h.sendError(c, AsCoreError(err))
		return
	}
	metrics.MessagesTotal.Inc()
	h.emitToRoom(msg.ChannelID, &Event{Kind: EventMessageNew, Channel: msg.ChannelID, Message: msg})
}

func (h *Hub) handleEdit(ctx context.Context, c *Client, cmd *Command) {
	msg, err := h.lifecycle.Edit(ctx, c.Identity, cmd.MessageID, cmd.Content)
	if err != nil {
		h.logRejection(err, c, "edit message")
		h.sendError(c, AsCoreError(err))
		return
	}
	h.emitToRoom(msg.ChannelID, &Event{Kind: EventMessageUpdate, Channel: msg.ChannelID, Message: msg})
}

func (h *Hub) handleDelete(ctx context.Context, c *Client, cmd *Command) {
	msg, err := h.lifecycle.Delete(ctx, c.Identity, cmd.MessageID)
	if err != nil {
		h.logRejection(err, c, "delete message")
		h.sendError(c, AsCoreError(err))
		return
	}
	h.emitToRoom(msg.ChannelID, &Event{Kind: EventMessageDelete, Channel: msg.ChannelID, MessageID: msg.ID})
}

func (h *Hub) handleReact(ctx context.Context, c *Client, cmd *Command) {
	msg, err := h.lifecycle.React(ctx, c.Identity, cmd.MessageID, cmd.Emoji)
	if err != nil {
		h.logRejection(err, c, "react to message")
		h.sendError(c, AsCoreError(err))
		return
	}
	h.emitToRoom(msg.ChannelID, &Event{Kind: EventMessageUpdate, Channel: msg.ChannelID, Message: msg})
}

func (h *Hub) handleTyping(c *Client, channelID string, kind EventKind) {
	// Fire-and-forget: never persisted, silently ignored when not joined.
	if _, joined := c.Channels[channelID]; !joined {
		return
	}
	if room, ok := h.rooms[channelID]; ok {
		room.BroadcastExcept(&Event{
			Kind:     kind,
			Channel:  channelID,
			UserID:   c.Identity.UserID,
			Username: c.Identity.Username,
		}, c)
	}
}

func (h *Hub) handleSetStatus(c *Client, status Status) {
	if !ValidStatus(status) {
		h.sendError(c, errBadRequest("invalid status"))
		return
	}
	pr := h.presence.SetStatus(c.Identity, status)
	h.broadcastExcept(&Event{Kind: EventUserStatus, Presence: &pr}, nil)
}

func (h *Hub) room(channelID string) *Room {
	room, ok := h.rooms[channelID]
	if !ok {
		room = NewRoom(channelID)
		h.rooms[channelID] = room
	}
	return room
}

func (h *Hub) emitToRoom(channelID string, event *Event) {
	if room, ok := h.rooms[channelID]; ok {
		room.Broadcast(event)
	}
}

// broadcastExcept delivers an event to every session, optionally skipping one.
func (h *Hub) broadcastExcept(event *Event, skip *Client) {
	for c := range h.clients {
		if c == skip {
			continue
		}
		h.send(c, event)
	}
}

func (h *Hub) send(c *Client, event *Event) {
	select {
	case c.Events <- event:
	default:
		// Drop if slow consumer.
	}
}

func (h *Hub) sendError(c *Client, ce *CoreError) {
	h.send(c, &Event{Kind: EventError, Error: ce})
}

func (h *Hub) logRejection(err error, c *Client, op string) {
	ce := AsCoreError(err)
	if ce.Code == ErrCodeInternal {
		h.log.Error().Err(err).Str("user_id", c.Identity.UserID).Msg(op)
		return
	}
	h.log.Debug().Str("code", ce.Code).Str("user_id", c.Identity.UserID).Msg(op)
}
