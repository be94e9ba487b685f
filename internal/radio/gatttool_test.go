package radio

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// scriptedGatttool 按收到的命令回写预设输出
type scriptedGatttool struct {
	mu       sync.Mutex
	received []string
	replies  map[string][]string
}

func (s *scriptedGatttool) spawn(ctx context.Context, address string) (*process, error) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		defer outW.Close()
		scanner := bufio.NewScanner(inR)
		for scanner.Scan() {
			cmd := scanner.Text()
			s.mu.Lock()
			s.received = append(s.received, cmd)
			replies := s.replies[strings.Fields(cmd)[0]]
			s.mu.Unlock()
			for _, line := range replies {
				if _, err := io.WriteString(outW, line+"\r\n"); err != nil {
					return
				}
			}
		}
	}()

	wait := func() error {
		<-exited
		return nil
	}
	done := make(chan struct{})
	return &process{stdin: inW, lines: readLines(outR, done), done: done, wait: wait}, nil
}

func (s *scriptedGatttool) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func TestGatttoolSession(t *testing.T) {
	script := &scriptedGatttool{replies: map[string][]string{
		"connect":        {"Attempting to connect to AA:BB:CC:DD:EE:FF", "Connection successful"},
		"char-read-uuid": {"handle: 0x0030 \t value: 5a "},
	}}
	g := NewGatttoolBackend(zaptest.NewLogger(t))
	g.spawn = script.spawn
	ctx := context.Background()

	if err := g.Connect(ctx, "AA:BB:CC:DD:EE:FF"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	data, err := g.ReadCharacteristic(ctx, BatteryCharacteristic)
	if err != nil {
		t.Fatalf("ReadCharacteristic: %v", err)
	}
	if !bytes.Equal(data, []byte{0x5a}) {
		t.Errorf("data = %x", data)
	}
	if err := g.WriteCharacteristic(ctx, CommandCharacteristic, []byte{0x0b, 0x00}); err != nil {
		t.Fatalf("WriteCharacteristic: %v", err)
	}
	if err := g.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	want := []string{
		"connect",
		"char-read-uuid 00002a19-0000-1000-8000-00805f9b34fb",
		"char-write-req c1670003-2c5d-42fd-be9b-1f2dd6681818 0b00",
		"disconnect",
		"exit",
	}
	got := script.commands()
	if len(got) != len(want) {
		t.Fatalf("commands = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGatttoolConnectFailsWhenProcessExits(t *testing.T) {
	script := &scriptedGatttool{replies: map[string][]string{}}
	g := NewGatttoolBackend(zaptest.NewLogger(t))
	g.spawn = func(ctx context.Context, address string) (*process, error) {
		p, err := script.spawn(ctx, address)
		if err != nil {
			return nil, err
		}
		lines := make(chan string)
		close(lines)
		p.lines = lines
		return p, nil
	}

	if err := g.Connect(context.Background(), "AA:BB:CC:DD:EE:FF"); err == nil {
		t.Fatal("expected connect error")
	}
	if _, err := g.ReadCharacteristic(context.Background(), BatteryCharacteristic); err == nil {
		t.Error("read after failed connect should fail")
	}
}

func TestReadLinesDrainsAfterClose(t *testing.T) {
	pr, pw := io.Pipe()
	done := make(chan struct{})
	lines := readLines(pr, done)

	written := make(chan struct{})
	go func() {
		defer close(written)
		for i := 0; i < 40; i++ {
			if _, err := io.WriteString(pw, "Notification handle = 0x0030\r\n"); err != nil {
				return
			}
		}
		pw.Close()
	}()

	// 缓冲区写满后再关闭
	deadline := time.After(2 * time.Second)
	for len(lines) < cap(lines) {
		select {
		case <-deadline:
			t.Fatalf("buffer never filled, %d lines", len(lines))
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(done)

	select {
	case <-written:
	case <-time.After(2 * time.Second):
		t.Fatal("writer blocked after close, reader stopped draining")
	}
	n := 0
	for range lines {
		n++
	}
	if n > cap(lines) {
		t.Errorf("delivered %d lines after close", n)
	}
}

func TestParseLescan(t *testing.T) {
	out := []byte("LE Scan ...\n" +
		"AA:BB:CC:DD:EE:01 (unknown)\n" +
		"AA:BB:CC:DD:EE:01 Tractive GPS\n" +
		"aa:bb:cc:dd:ee:02 (unknown)\n" +
		"garbage line\n")

	got := parseLescan(out)
	want := []Device{
		{Address: "AA:BB:CC:DD:EE:01", Name: "Tractive GPS"},
		{Address: "AA:BB:CC:DD:EE:02"},
	}
	if len(got) != len(want) {
		t.Fatalf("devices = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("device %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseReadValue(t *testing.T) {
	tests := []struct {
		line    string
		want    []byte
		wantErr bool
	}{
		{line: "handle: 0x0030 \t value: 64", want: []byte{0x64}},
		{line: "handle: 0x0030 value: 01 02 ff", want: []byte{0x01, 0x02, 0xff}},
		{line: "handle: 0x0030", wantErr: true},
		{line: "handle: 0x0030 value: zz", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseReadValue(tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseReadValue(%q) err = %v", tt.line, err)
			continue
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("parseReadValue(%q) = %x, want %x", tt.line, got, tt.want)
		}
	}
}
