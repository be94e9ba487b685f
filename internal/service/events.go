package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/clock"
)

// EventType 事件类型
type EventType string

const (
	EventLowBattery      EventType = "low_battery_alert"
	EventPoorGPSAccuracy EventType = "poor_gps_accuracy"
	EventGPSFallbackUsed EventType = "gps_fallback_used"
	EventCommandSent     EventType = "command_sent"
	EventShareCreated    EventType = "share_created"
	EventDataExported    EventType = "data_exported"
	EventPetAtHome       EventType = "pet_at_home"
	EventGettingCloser   EventType = "pet_getting_closer"
)

// Event 事件
type Event struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data"`
	Time time.Time      `json:"time"`
}

// EventHandler 事件回调
type EventHandler func(Event)

// EventBus 事件注册表，回调 panic 会被捕获并记录
type EventBus struct {
	logger *zap.Logger
	clock  clock.Clock

	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	subscribers []chan Event
}

// NewEventBus 创建事件注册表，事件时间取自 clk
func NewEventBus(clk clock.Clock, logger *zap.Logger) *EventBus {
	if clk == nil {
		clk = clock.Real()
	}
	return &EventBus{
		logger:   logger,
		clock:    clk,
		handlers: make(map[EventType][]EventHandler),
	}
}

// On 注册回调
func (b *EventBus) On(t EventType, h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Subscribe 订阅所有事件
func (b *EventBus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 32)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Emit 同步调用回调，再非阻塞地推给订阅者
func (b *EventBus) Emit(t EventType, data map[string]any) {
	if b == nil {
		return
	}
	ev := Event{Type: t, Data: data, Time: b.clock.Now()}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[t]...)
	subscribers := append([]chan Event(nil), b.subscribers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(h, ev)
	}
	for _, ch := range subscribers {
		select {
		case ch <- ev:
		default:
			// 慢消费者，丢弃
		}
	}
}

func (b *EventBus) safeCall(h EventHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("event", string(ev.Type)),
				zap.Any("panic", r))
		}
	}()
	h(ev)
}
