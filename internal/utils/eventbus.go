package utils

import (
	"sync"
	"time"
)

// AnyEvent subscribes a handler to every event name.
const AnyEvent = "*"

type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	At    time.Time   `json:"at"`
}

// Handler must not block: it runs on the publisher's goroutine.
type Handler func(event Event)

type EventBus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]Handler),
	}
}

func (eb *EventBus) Publish(event string, data interface{}) {
	e := Event{Event: event, Data: data, At: time.Now().UTC()}

	eb.mu.RLock()
	handlers := make([]Handler, 0, len(eb.subscribers[event])+len(eb.subscribers[AnyEvent]))
	handlers = append(handlers, eb.subscribers[event]...)
	handlers = append(handlers, eb.subscribers[AnyEvent]...)
	eb.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

func (eb *EventBus) Subscribe(event string, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[event] = append(eb.subscribers[event], handler)
}
