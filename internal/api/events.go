package api

import (
	"sync"
	"time"
)

// イベントの種類
const (
	EventEdge     = "edge"
	EventCapture  = "capture"
	EventDevices  = "devices"
	EventProfile  = "profile"
	EventInjected = "injected"
)

// Event はUIに通知するイベント
type Event struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	DeviceID string    `json:"deviceId,omitempty"`
	Position int       `json:"position,omitempty"`
	Switch   string    `json:"switch,omitempty"`

	// captureイベント
	Session string `json:"session,omitempty"`
	State   string `json:"state,omitempty"`
	Code    uint32 `json:"code,omitempty"`
	Name    string `json:"name,omitempty"`

	// injectedイベント
	Direction string `json:"direction,omitempty"`

	// devices/profileイベント
	Profile string `json:"profile,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// subscriberBuffer は購読者ごとのバッファ。溢れたイベントは捨てる
const subscriberBuffer = 64

// EventBus はイベントを購読者に配る。
// Publishは遅い購読者を待たない
type EventBus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewEventBus はEventBusを作る
func NewEventBus() *EventBus {
	return &EventBus{subs: map[int]chan Event{}}
}

// Subscribe はイベントを受け取るチャネルと購読解除の関数を返す
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish はeを全購読者に送る。バッファが一杯の購読者には送らない
func (b *EventBus) Publish(e Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			dropped++
		}
	}
	return dropped
}

// Close は全購読者のチャネルを閉じる
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
