package call

import (
	"sync"

	"github.com/dkeye/Tandem/internal/domain"
)

type EventKind int

const (
	EventStateChanged EventKind = iota + 1
	EventIncomingCall
	EventRemoteTrack
	EventCallEnded
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state-changed"
	case EventIncomingCall:
		return "incoming-call"
	case EventRemoteTrack:
		return "remote-track"
	case EventCallEnded:
		return "call-ended"
	}
	return "unknown"
}

// Event is what observers of a Coordinator receive. Track is set for
// EventRemoteTrack. For EventCallEnded, Err carries the cause and is nil
// when the call was ended locally.
type Event struct {
	Kind   EventKind
	State  State
	Remote domain.UserID
	Track  *RemoteTrack
	Err    error
}

type subscription struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// broker delivers events in order on its own goroutine so that the event
// loop never waits on a subscriber.
type broker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	subs   map[int]*subscription
	nextID int
	closed bool
}

func newBroker() *broker {
	b := &broker{subs: make(map[int]*subscription)}
	b.cond = sync.NewCond(&b.mu)
	go b.run()
	return b
}

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscription{ch: make(chan Event, 16), done: make(chan struct{})}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	cancel := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
	}
	return sub.ch, cancel
}

func (b *broker) publish(e Event) {
	b.mu.Lock()
	if !b.closed {
		b.queue = append(b.queue, e)
		b.cond.Signal()
	}
	b.mu.Unlock()
}

func (b *broker) close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Signal()
	b.mu.Unlock()
}

func (b *broker) run() {
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 {
			for id, sub := range b.subs {
				close(sub.ch)
				delete(b.subs, id)
			}
			b.mu.Unlock()
			return
		}
		e := b.queue[0]
		b.queue = b.queue[1:]
		subs := make([]*subscription, 0, len(b.subs))
		for _, sub := range b.subs {
			subs = append(subs, sub)
		}
		b.mu.Unlock()

		for _, sub := range subs {
			select {
			case sub.ch <- e:
			case <-sub.done:
			}
		}
	}
}
