package runner

import "github.com/pavelanni/examfix/internal/model"

// Subscribe returns a channel that receives a snapshot after every state change,
// starting with the current state. Slow readers only see the latest snapshot.
// The returned func unsubscribes and closes the channel.
func (r *Runner) Subscribe() (<-chan model.RunState, func()) {
	ch := make(chan model.RunState, 1)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	ch <- r.copyLocked()
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// publishLocked delivers the current state to every subscriber, replacing
// any snapshot a subscriber has not read yet.
func (r *Runner) publishLocked() {
	if len(r.subs) == 0 {
		return
	}
	snap := r.copyLocked()
	for _, ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
