package game

import "sync"

type EventType string

const (
	EventState       EventType = "state"
	EventEngineMove  EventType = "engine_move"
	EventEngineError EventType = "engine_error"
	EventTimer       EventType = "timer"
	EventTerminal    EventType = "terminal"
	EventLeaderboard EventType = "leaderboard"
)

// Event is a change notification. State is set for every type except
// EventTimer, which only carries Elapsed.
type Event struct {
	Type    EventType
	State   *State
	Move    string
	Elapsed int
	Entry   *SubmitResult
	Message string
}

type broker struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan Event)}
}

func (b *broker) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// publish never blocks; a subscriber that falls behind loses events and is
// expected to re-read the state.
func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
