// Package registry maps delivery channels (the bot instance a recipient
// originally contacted, keyed by bot username) to live connections.
package registry

import (
	"strings"
	"sync"

	"catbot/internal/transport"
)

// Registry holds the process's bot connections. It is built once at startup
// and read for the lifetime of the process; registration order determines
// the default (fallback) channel.
type Registry struct {
	mu    sync.RWMutex
	order []string
	chans map[string]transport.Sender
}

func New() *Registry {
	return &Registry{chans: map[string]transport.Sender{}}
}

// Register adds a channel under the sender's username. Re-registering the
// same username replaces the previous connection.
func (r *Registry) Register(s transport.Sender) {
	if s == nil {
		return
	}
	key := normalize(s.Username())
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chans[key]; !exists {
		r.order = append(r.order, key)
	}
	r.chans[key] = s
}

// Resolve returns the channel for the given id (case-insensitive, leading
// "@" tolerated), or nil if it is not registered.
func (r *Registry) Resolve(channelID string) transport.Sender {
	key := normalize(channelID)
	if key == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chans[key]
}

// Default returns the first registered channel, or nil when the registry is
// empty. An empty registry is tolerated: delivery is skipped, not crashed.
func (r *Registry) Default() transport.Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return nil
	}
	return r.chans[r.order[0]]
}

// ResolveOrDefault returns the channel for channelID, falling back to the
// default when channelID is empty or unknown.
func (r *Registry) ResolveOrDefault(channelID string) transport.Sender {
	if s := r.Resolve(channelID); s != nil {
		return s
	}
	return r.Default()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "@"))
}
