// Package realtime relays messages to connected socket.io clients.
package realtime

import (
	"sort"
	"sync"
)

type connection struct {
	memberID string
	rooms    map[string]struct{}
}

// Registry tracks live connections, the member behind each one and the rooms
// it joined. It replaces ad-hoc global maps; one instance per server.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*connection
	members map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[string]*connection),
		members: make(map[string]map[string]struct{}),
	}
}

// Connect records connID as belonging to memberID. Reconnecting an existing
// id moves it to the new member.
func (r *Registry) Connect(connID, memberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[connID]; ok {
		r.dropMemberConn(old.memberID, connID)
	}
	r.conns[connID] = &connection{memberID: memberID, rooms: make(map[string]struct{})}
	set, ok := r.members[memberID]
	if !ok {
		set = make(map[string]struct{})
		r.members[memberID] = set
	}
	set[connID] = struct{}{}
}

// Join records that connID joined room. It reports false for unknown
// connections.
func (r *Registry) Join(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return false
	}
	c.rooms[room] = struct{}{}
	return true
}

// Disconnect forgets connID and returns the member it belonged to and the
// rooms it had joined.
func (r *Registry) Disconnect(connID string) (memberID string, rooms []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return "", nil
	}
	delete(r.conns, connID)
	r.dropMemberConn(c.memberID, connID)
	return c.memberID, sortedKeys(c.rooms)
}

func (r *Registry) dropMemberConn(memberID, connID string) {
	set := r.members[memberID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.members, memberID)
	}
}

// InRoom reports whether connID joined room.
func (r *Registry) InRoom(connID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return false
	}
	_, joined := c.rooms[room]
	return joined
}

// IsOnline reports whether memberID has at least one live connection.
func (r *Registry) IsOnline(memberID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[memberID]) > 0
}

// Rooms lists the rooms connID joined, sorted.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	return sortedKeys(c.rooms)
}

// Online lists the members with a live connection, sorted.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.members)
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
