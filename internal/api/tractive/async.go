package tractive

import (
	"context"
	"encoding/json"
)

// Call 一次异步调用，完成后通过 Done 送回自身
type Call struct {
	Request Request
	Result  json.RawMessage
	Error   error
	Done    chan *Call
}

// Go 在独立 goroutine 中执行与 Request 完全相同的流程
// done 为 nil 时自动创建容量为 1 的通道
func (c *Client) Go(ctx context.Context, req Request, done chan *Call) *Call {
	if done == nil {
		done = make(chan *Call, 1)
	} else if cap(done) == 0 {
		panic("tractive: done channel is unbuffered")
	}
	call := &Call{Request: req, Done: done}

	go func() {
		call.Result, call.Error = c.Request(ctx, req)
		call.Done <- call
	}()
	return call
}

// Wait 等待调用完成
func (call *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case done := <-call.Done:
		return done.Result, done.Error
	}
}
