package radio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const gatttoolTimeout = 10 * time.Second

var errProcessExited = errors.New("gatttool exited")

// process 交互式子进程
type process struct {
	stdin io.WriteCloser
	lines chan string
	// done 关闭后读取协程只丢弃输出，不再投递
	done  chan struct{}
	wait  func() error
}

// spawnFunc 启动 gatttool -I，测试中替换
type spawnFunc func(ctx context.Context, address string) (*process, error)

// scanFunc 运行 hcitool lescan 并返回输出，测试中替换
type scanFunc func(ctx context.Context) ([]byte, error)

// GatttoolBackend 通过 gatttool 交互模式通信，仅 Linux
type GatttoolBackend struct {
	logger *zap.Logger
	spawn  spawnFunc
	scan   scanFunc

	mu   sync.Mutex
	proc *process
}

// NewGatttoolBackend 创建 gatttool 后端
func NewGatttoolBackend(logger *zap.Logger) *GatttoolBackend {
	return &GatttoolBackend{
		logger: logger,
		spawn:  spawnGatttool,
		scan:   runLescan,
	}
}

func (g *GatttoolBackend) Name() string { return "gatttool" }

// Discover hcitool lescan 运行到超时后解析输出
func (g *GatttoolBackend) Discover(ctx context.Context, timeout time.Duration) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := g.scan(ctx)
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("hcitool lescan: %w", err)
	}
	devices := parseLescan(out)
	g.logger.Debug("hcitool scan finished", zap.Int("devices", len(devices)))
	return devices, nil
}

// Connect 发送 connect，等待 "Connection successful"
func (g *GatttoolBackend) Connect(ctx context.Context, address string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.proc != nil {
		g.closeLocked()
	}

	proc, err := g.spawn(ctx, address)
	if err != nil {
		return fmt.Errorf("spawn gatttool: %w", err)
	}
	g.proc = proc

	if err := g.sendLocked("connect"); err != nil {
		g.closeLocked()
		return err
	}
	if _, err := g.expectLocked(ctx, "Connection successful"); err != nil {
		g.closeLocked()
		return fmt.Errorf("connect %s: %w", address, err)
	}
	return nil
}

func (g *GatttoolBackend) Disconnect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.proc == nil {
		return nil
	}
	err := g.sendLocked("disconnect")
	if err == nil {
		err = g.sendLocked("exit")
	}
	g.closeLocked()
	return err
}

// ReadCharacteristic char-read-uuid，响应形如 "handle: 0x0030 	 value: 5a"
func (g *GatttoolBackend) ReadCharacteristic(ctx context.Context, id uuid.UUID) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.proc == nil {
		return nil, errProcessExited
	}
	if err := g.sendLocked("char-read-uuid " + id.String()); err != nil {
		return nil, err
	}
	line, err := g.expectLocked(ctx, "handle: ")
	if err != nil {
		return nil, err
	}
	return parseReadValue(line)
}

func (g *GatttoolBackend) WriteCharacteristic(ctx context.Context, id uuid.UUID, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.proc == nil {
		return errProcessExited
	}
	return g.sendLocked(fmt.Sprintf("char-write-req %s %s", id, hex.EncodeToString(data)))
}

func (g *GatttoolBackend) sendLocked(line string) error {
	if _, err := io.WriteString(g.proc.stdin, line+"\n"); err != nil {
		return fmt.Errorf("write to gatttool: %w", err)
	}
	return nil
}

// expectLocked 读取输出直到某行包含 marker
func (g *GatttoolBackend) expectLocked(ctx context.Context, marker string) (string, error) {
	timer := time.NewTimer(gatttoolTimeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-g.proc.lines:
			if !ok {
				return "", errProcessExited
			}
			g.logger.Debug("gatttool", zap.String("line", line))
			if strings.Contains(line, marker) {
				return line, nil
			}
		case <-timer.C:
			return "", fmt.Errorf("timed out waiting for %q", marker)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (g *GatttoolBackend) closeLocked() {
	if g.proc.done != nil {
		close(g.proc.done)
	}
	_ = g.proc.stdin.Close()
	if g.proc.wait != nil {
		if err := g.proc.wait(); err != nil {
			g.logger.Debug("gatttool exited", zap.Error(err))
		}
	}
	g.proc = nil
}

func spawnGatttool(_ context.Context, address string) (*process, error) {
	// 进程生命周期跟随连接而不是单次调用的 ctx
	cmd := exec.Command("gatttool", "-b", address, "-t", "random", "-I")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	return &process{stdin: stdin, lines: readLines(stdout, done), done: done, wait: cmd.Wait}, nil
}

// readLines 逐行读取，gatttool 交互输出带 \r 和颜色控制符
// done 关闭后继续读到 EOF，避免子进程写满管道
func readLines(r io.Reader, done <-chan struct{}) chan string {
	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(strings.ReplaceAll(scanner.Text(), "\r", ""))
			select {
			case lines <- line:
			case <-done:
			}
		}
	}()
	return lines
}

func runLescan(ctx context.Context) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "hcitool", "lescan")
	cmd.Stdout = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// parseLescan 每行 "AA:BB:CC:DD:EE:FF name"，同一地址只保留第一个有名字的
func parseLescan(out []byte) []Device {
	var devices []Device
	index := make(map[string]int)

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.Count(fields[0], ":") != 5 {
			continue
		}
		addr := strings.ToUpper(fields[0])
		name := strings.Join(fields[1:], " ")
		if name == "(unknown)" {
			name = ""
		}

		if i, ok := index[addr]; ok {
			if devices[i].Name == "" {
				devices[i].Name = name
			}
			continue
		}
		index[addr] = len(devices)
		devices = append(devices, Device{Address: addr, Name: name})
	}
	return devices
}

func parseReadValue(line string) ([]byte, error) {
	i := strings.Index(line, "value:")
	if i < 0 {
		return nil, fmt.Errorf("unexpected gatttool output %q", line)
	}
	raw := strings.Join(strings.Fields(line[i+len("value:"):]), "")
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", raw, err)
	}
	return data, nil
}
