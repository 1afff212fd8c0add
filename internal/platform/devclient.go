package platform

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DevClient is the in-process stand-in used until a real chat adapter is
// attached. Channels it "creates" live in memory, so the full lifecycle,
// schedulers and verifier can run against it in development.
type DevClient struct {
	logger *zap.Logger

	mu       sync.Mutex
	channels map[string]*ChannelState
	seq      atomic.Int64
}

// NewDevClient builds a logging in-memory platform client.
func NewDevClient(logger *zap.Logger) *DevClient {
	return &DevClient{
		logger:   logger,
		channels: make(map[string]*ChannelState),
	}
}

// CreateChannel allocates an in-memory channel handle.
func (c *DevClient) CreateChannel(ctx context.Context, communityID, name string, grants []PermissionGrant) (string, error) {
	handle := fmt.Sprintf("dev-%s-%d", communityID, c.seq.Add(1))
	c.mu.Lock()
	c.channels[handle] = &ChannelState{Handle: handle, Name: name, Grants: append([]PermissionGrant(nil), grants...)}
	c.mu.Unlock()
	c.logger.Info("dev channel created",
		zap.String("community_id", communityID),
		zap.String("name", name),
		zap.String("handle", handle))
	return handle, nil
}

// DeleteChannel removes the channel; deleting an unknown handle reports
// channel_gone, which callers treat as success.
func (c *DevClient) DeleteChannel(ctx context.Context, handle string) error {
	c.mu.Lock()
	_, ok := c.channels[handle]
	delete(c.channels, handle)
	c.mu.Unlock()
	if !ok {
		return NewError(KindChannelGone, "delete channel", nil)
	}
	c.logger.Info("dev channel deleted", zap.String("handle", handle))
	return nil
}

// RenameChannel renames an in-memory channel.
func (c *DevClient) RenameChannel(ctx context.Context, handle, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.channels[handle]
	if !ok {
		return NewError(KindChannelGone, "rename channel", nil)
	}
	state.Name = name
	return nil
}

// SetPermission upserts a grant on the channel.
func (c *DevClient) SetPermission(ctx context.Context, handle string, grant PermissionGrant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.channels[handle]
	if !ok {
		return NewError(KindChannelGone, "set permission", nil)
	}
	for i := range state.Grants {
		if state.Grants[i].Principal == grant.Principal {
			state.Grants[i] = grant
			return nil
		}
	}
	state.Grants = append(state.Grants, grant)
	return nil
}

// InspectChannel returns a copy of the channel state.
func (c *DevClient) InspectChannel(ctx context.Context, handle string) (*ChannelState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.channels[handle]
	if !ok {
		return nil, NewError(KindChannelGone, "inspect channel", nil)
	}
	copied := *state
	copied.Grants = append([]PermissionGrant(nil), state.Grants...)
	return &copied, nil
}

// PostMessage logs the message instead of delivering it.
func (c *DevClient) PostMessage(ctx context.Context, channelHandle, content string) error {
	c.logger.Info("dev message posted",
		zap.String("channel", channelHandle),
		zap.String("content", content))
	return nil
}

// DirectMessage logs the DM instead of delivering it.
func (c *DevClient) DirectMessage(ctx context.Context, userID, content string) error {
	c.logger.Info("dev direct message",
		zap.String("user_id", userID),
		zap.String("content", content))
	return nil
}

// IsActionable always answers true; interactions never expire in dev.
func (c *DevClient) IsActionable(ctx context.Context, interactionID string) bool {
	return true
}
