package events

import "sync"

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a per-world pub/sub event bus with support for global subscribers.
// The session emits engine output; each subscriber (terminal, log writer,
// etc.) renders it for its own medium.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific world's events.
func (b *Bus) Subscribe(world string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[world] = append(b.subscribers[world], sub)
}

// Unsubscribe removes a subscriber for a specific world.
func (b *Bus) Unsubscribe(world string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[world]
	for i, s := range subs {
		if s == sub {
			b.subscribers[world] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[world]) == 0 {
		delete(b.subscribers, world)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the subscribers of ev.World and all global subscribers.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.World]
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// EmitToWorld sends an event to a specific world (overriding ev.World).
func (b *Bus) EmitToWorld(world string, ev Event) {
	ev.World = world
	b.Emit(ev)
}

// WorldSubscribers returns the number of subscribers for a world.
func (b *Bus) WorldSubscribers(world string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[world])
}

// Cleanup removes closed subscribers from all lists.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for world, subs := range b.subscribers {
		var active []Subscriber
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.subscribers, world)
		} else {
			b.subscribers[world] = active
		}
	}

	var activeGlobal []Subscriber
	for _, s := range b.global {
		if !s.Closed() {
			activeGlobal = append(activeGlobal, s)
		}
	}
	b.global = activeGlobal
}
