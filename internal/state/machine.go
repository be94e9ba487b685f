package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
)

// 蓝牙连接状态
const (
	LinkDisconnected = "disconnected"
	LinkConnecting   = "connecting"
	LinkConnected    = "connected"
	LinkReconnecting = "reconnecting" // 预留，目前没有事件进入此状态
	LinkError        = "error"
)

// 蓝牙连接事件
const (
	EventConnect    = "connect"
	EventConnected  = "connected"
	EventDisconnect = "disconnect"
	EventFail       = "fail"
)

// 会话状态
const (
	SessionUnauthenticated = "unauthenticated"
	SessionAuthenticated   = "authenticated"
)

// 会话事件
const (
	EventLogin      = "login"
	EventInvalidate = "invalidate"
)

// LinkEvents 蓝牙连接状态转换表
func LinkEvents() fsm.Events {
	return fsm.Events{
		// 从 disconnected / error 状态
		{Name: EventConnect, Src: []string{LinkDisconnected, LinkError}, Dst: LinkConnecting},

		// 从 connecting 状态
		{Name: EventConnected, Src: []string{LinkConnecting}, Dst: LinkConnected},

		// 断开或失败
		{Name: EventDisconnect, Src: []string{LinkConnecting, LinkConnected, LinkError}, Dst: LinkDisconnected},
		{Name: EventFail, Src: []string{LinkConnecting, LinkConnected}, Dst: LinkError},
	}
}

// SessionEvents 会话状态转换表
func SessionEvents() fsm.Events {
	return fsm.Events{
		{Name: EventLogin, Src: []string{SessionUnauthenticated}, Dst: SessionAuthenticated},
		{Name: EventInvalidate, Src: []string{SessionAuthenticated}, Dst: SessionUnauthenticated},
	}
}

// Machine 状态机，对 looplab/fsm 加锁封装
type Machine struct {
	mu            sync.RWMutex
	name          string
	fsm           *fsm.FSM
	onStateChange func(name, from, to string)
}

// NewMachine 创建状态机
func NewMachine(name, initialState string, events fsm.Events, onStateChange func(name, from, to string)) *Machine {
	m := &Machine{
		name:          name,
		onStateChange: onStateChange,
	}

	m.fsm = fsm.NewFSM(
		initialState,
		events,
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(m.name, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// NewLinkMachine 创建蓝牙连接状态机，初始为 disconnected
func NewLinkMachine(address string, onStateChange func(name, from, to string)) *Machine {
	return NewMachine(address, LinkDisconnected, LinkEvents(), onStateChange)
}

// NewSessionMachine 创建会话状态机，初始为 unauthenticated
func NewSessionMachine(onStateChange func(name, from, to string)) *Machine {
	return NewMachine("session", SessionUnauthenticated, SessionEvents(), onStateChange)
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// Is 是否处于某状态
func (m *Machine) Is(state string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Is(state)
}

// Trigger 触发事件
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	return nil
}

// CanTransition 检查是否可以转换
func (m *Machine) CanTransition(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}
