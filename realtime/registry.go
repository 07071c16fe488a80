package realtime

import "sync"

// A Channel is a single persistent push connection to one client instance.
// A user with multiple devices or tabs holds one Channel per connection.
type Channel interface {
	Send(data []byte) error
	Close() error
}

// Registry maps user IDs to the set of channels currently open for that
// user. It is pure in-process state: it is rebuilt empty on restart and
// clients are expected to reconnect.
type Registry struct {
	mu     sync.Mutex
	byUser map[string]map[Channel]struct{}
	owner  map[Channel]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[Channel]struct{}),
		owner:  make(map[Channel]string),
	}
}

// Register adds the channel to the user's channel set. Registering the same
// channel twice is a no-op. A channel belongs to at most one user; if it was
// previously registered under another user it is moved.
func (r *Registry) Register(userID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owner[ch]; ok {
		if prev == userID {
			return
		}
		r.removeLocked(prev, ch)
	}
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[Channel]struct{})
		r.byUser[userID] = set
	}
	set[ch] = struct{}{}
	r.owner[ch] = userID
}

// Unregister removes the channel from whichever user's set contains it.
// It is a no-op for unknown channels. Callers must invoke it on every
// channel termination, otherwise the dispatcher keeps pushing to a dead
// connection until a send fails.
func (r *Registry) Unregister(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owner[ch]
	if !ok {
		return
	}
	r.removeLocked(userID, ch)
}

func (r *Registry) removeLocked(userID string, ch Channel) {
	delete(r.owner, ch)
	if set, ok := r.byUser[userID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// ChannelsFor returns a snapshot of the user's open channels. The result is
// empty for users with no live connection.
func (r *Registry) ChannelsFor(userID string) []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byUser[userID]
	out := make([]Channel, 0, len(set))
	for ch := range set {
		out = append(out, ch)
	}
	return out
}
