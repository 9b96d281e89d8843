package game

import "sync"

// reactionBuffer bounds reactions queued for one prompt; extra reactions are dropped.
const reactionBuffer = 64

// router fans reactions out to the round waiting on the reacted message.
type router struct {
	mu   sync.Mutex
	subs map[string]chan Reaction
}

func newRouter() *router { return &router{subs: make(map[string]chan Reaction)} }

func (r *router) subscribe(messageID string) (<-chan Reaction, func()) {
	ch := make(chan Reaction, reactionBuffer)
	r.mu.Lock()
	r.subs[messageID] = ch
	r.mu.Unlock()
	return ch, func() {
		r.mu.Lock()
		delete(r.subs, messageID)
		r.mu.Unlock()
	}
}

func (r *router) publish(re Reaction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.subs[re.MessageID]
	if !ok {
		return false
	}
	select {
	case ch <- re:
		return true
	default:
		return false
	}
}
