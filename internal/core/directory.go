package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/personly/channels-server/internal/store"
)

// Directory answers channel membership and authorization queries. It is a
// thin layer over the channel store; channel creation and membership changes
// arrive through admin actions, not through the directory.
type Directory struct {
	store store.ChannelStore
}

// NewDirectory creates a channel directory backed by the given store.
func NewDirectory(st store.ChannelStore) *Directory {
	return &Directory{store: st}
}

// IsMember checks whether the user belongs to the channel.
func (d *Directory) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	return d.store.IsMember(ctx, channelID, userID)
}

// HasRole checks whether the user holds a channel-scoped role.
func (d *Directory) HasRole(ctx context.Context, channelID, userID, role string) (bool, error) {
	member, err := d.store.GetMember(ctx, channelID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get member: %w", err)
	}
	return member.HasRole(role), nil
}

// SlowMode returns the channel's slow-mode configuration.
func (d *Directory) SlowMode(ctx context.Context, channelID string) (store.SlowMode, error) {
	ch, err := d.store.GetChannel(ctx, channelID)
	if err != nil {
		return store.SlowMode{}, err
	}
	return ch.SlowMode, nil
}

// TouchActivity bumps the channel's last-activity timestamp.
func (d *Directory) TouchActivity(ctx context.Context, channelID string) error {
	return d.store.TouchActivity(ctx, channelID, time.Now().UTC())
}

// MemberChannels lists the channels the user belongs to.
func (d *Directory) MemberChannels(ctx context.Context, userID string) ([]*store.Channel, error) {
	return d.store.ListChannelsForUser(ctx, userID)
}

// MarkRead records the last message a member has read in a channel.
func (d *Directory) MarkRead(ctx context.Context, channelID, userID, messageID string) error {
	return d.store.UpdateLastRead(ctx, channelID, userID, messageID)
}

// CanJoin reports whether the identity may join the channel. A missing
// channel surfaces as store.ErrNotFound so callers can distinguish it from a
// membership rejection. Membership is required; absence is a rejection, never
// a fallback to public read. Private channels may additionally restrict
// admission to a persona whitelist.
func (d *Directory) CanJoin(ctx context.Context, channelID string, ident Identity) (bool, error) {
	ch, err := d.store.GetChannel(ctx, channelID)
	if err != nil {
		return false, err
	}

	member, err := d.store.IsMember(ctx, channelID, ident.UserID)
	if err != nil {
		return false, err
	}
	if !member {
		return false, nil
	}
	if len(ch.AllowedPersonas) == 0 {
		return true, nil
	}
	for _, persona := range ch.AllowedPersonas {
		if persona == ident.Persona {
			return true, nil
		}
	}
	return false, nil
}
