// Package observe re-dispatches document mutations as coarse, named change
// notifications. Delivery is synchronous and in subscription order.
package observe

import (
	"fmt"
	"slices"
	"sync"
)

// Topic names a sub-structure of the shared document.
type Topic string

const (
	TopicState   Topic = "state"
	TopicSource  Topic = "source"
	TopicObjects Topic = "objects"
	TopicOptions Topic = "options"
	TopicMeta    Topic = "meta"
)

// Topics lists every topic in dispatch order.
var Topics = []Topic{TopicState, TopicSource, TopicObjects, TopicOptions, TopicMeta}

// ParseTopic returns the topic named s.
func ParseTopic(s string) (Topic, error) {
	t := Topic(s)
	if !slices.Contains(Topics, t) {
		return "", fmt.Errorf("observe: unknown topic %q", s)
	}
	return t, nil
}

// Event is one change notification.
type Event struct {
	Topic  Topic
	Origin string // transaction origin, "remote" for merged changes
	Seq    uint64 // increases by one per published event
}

// Handler receives events.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[Topic][]subscription
	nextID int
	seq    uint64
}

// NewBus returns a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers fn for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, fn Handler) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.subs[topic] = slices.DeleteFunc(b.subs[topic], func(s subscription) bool { return s.id == id })
		})
	}
}

// Reset removes every subscriber.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[Topic][]subscription)
}

// Len returns the number of subscribers of topic.
func (b *Bus) Len(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// Publish delivers an event for topic to its current subscribers. Handlers
// run on the caller's goroutine without the bus lock held, so they may
// subscribe or cancel.
func (b *Bus) Publish(topic Topic, origin string) Event {
	b.mu.Lock()
	b.seq++
	ev := Event{Topic: topic, Origin: origin, Seq: b.seq}
	subs := slices.Clone(b.subs[topic])
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
	return ev
}
