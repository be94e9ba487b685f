package state

import (
	"testing"
)

func TestLinkMachineTransitions(t *testing.T) {
	var changes [][2]string
	m := NewLinkMachine("AA:BB", func(name, from, to string) {
		if name != "AA:BB" {
			t.Errorf("callback name = %q", name)
		}
		changes = append(changes, [2]string{from, to})
	})

	steps := []struct {
		event   string
		want    string
		wantErr bool
	}{
		{event: EventConnected, want: LinkDisconnected, wantErr: true},
		{event: EventConnect, want: LinkConnecting},
		{event: EventConnect, want: LinkConnecting, wantErr: true},
		{event: EventConnected, want: LinkConnected},
		{event: EventFail, want: LinkError},
		{event: EventConnect, want: LinkConnecting},
		{event: EventDisconnect, want: LinkDisconnected},
	}

	for _, s := range steps {
		err := m.Trigger(s.event)
		if (err != nil) != s.wantErr {
			t.Fatalf("Trigger(%s) err = %v, wantErr %v", s.event, err, s.wantErr)
		}
		if got := m.CurrentState(); got != s.want {
			t.Fatalf("after %s state = %s, want %s", s.event, got, s.want)
		}
	}

	if len(changes) != 5 {
		t.Errorf("callback fired %d times, want 5: %v", len(changes), changes)
	}
}

func TestReconnectingIsUnreachable(t *testing.T) {
	for _, e := range LinkEvents() {
		if e.Dst == LinkReconnecting {
			t.Fatalf("event %s enters the reserved reconnecting state", e.Name)
		}
	}
}

func TestSessionMachine(t *testing.T) {
	m := NewSessionMachine(nil)
	if !m.Is(SessionUnauthenticated) {
		t.Fatalf("initial state = %s", m.CurrentState())
	}
	if m.CanTransition(EventInvalidate) {
		t.Error("invalidate should not be possible before login")
	}
	if err := m.Trigger(EventLogin); err != nil {
		t.Fatal(err)
	}
	if err := m.Trigger(EventInvalidate); err != nil {
		t.Fatal(err)
	}
	if !m.Is(SessionUnauthenticated) {
		t.Errorf("state = %s after invalidate", m.CurrentState())
	}
}
