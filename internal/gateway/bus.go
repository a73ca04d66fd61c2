package gateway

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSubscriberBuffer is the outbound queue depth per subscriber.
const DefaultSubscriberBuffer = 32

// Subscriber is one connected client observing a session. Its channel is
// closed when the subscriber falls behind or the session is destroyed; a
// closed channel means reconnect.
type Subscriber struct {
	ch      chan Event
	dropped bool
}

// Events is the ordered stream for this subscriber.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Bus fans events out to every subscriber of one session, preserving the
// order in which the owning actor produced them. Publishing never blocks:
// a subscriber whose buffer is full is dropped, not waited on.
type Bus struct {
	code string

	mu   sync.Mutex
	seq  int
	subs map[*Subscriber]struct{}
	done bool
}

func NewBus(code string) *Bus {
	return &Bus{code: code, subs: map[*Subscriber]struct{}{}}
}

func (b *Bus) Subscribe(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	sub := &Subscriber{ch: make(chan Event, buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		close(sub.ch)
		sub.dropped = true
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// Publish assigns the next seq and delivers to all live subscribers.
func (b *Bus) Publish(evType string, data any, t time.Time) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ev := Event{
		SessionCode: b.code,
		Seq:         b.seq,
		Type:        evType,
		Data:        data,
		T:           t,
	}
	if b.done {
		return ev
	}
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			log.Warn().Str("code", b.code).Int("seq", ev.Seq).Msg("dropping slow subscriber")
			b.removeLocked(sub)
		}
	}
	return ev
}

// Seq returns the last assigned sequence number.
func (b *Bus) Seq() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops every subscriber; further publishes still assign seqs but
// deliver nowhere.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	for sub := range b.subs {
		b.removeLocked(sub)
	}
}

func (b *Bus) removeLocked(sub *Subscriber) {
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	sub.dropped = true
	close(sub.ch)
}
