package chat

import (
	"context"
	"sort"
	"time"

	"PPRealtime/tools/errs"
	"PPRealtime/tools/safe"
)

// Dispatcher 按帧 type 路由；注册只在启动期进行，之后只读
type Dispatcher struct {
	handlers map[string]Handler
	timeout  time.Duration
}

func NewDispatcher(timeout time.Duration) *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler), timeout: timeout}
}

// Register 同一 verb 只能注册一次
func (d *Dispatcher) Register(h Handler) {
	if _, dup := d.handlers[h.Verb()]; dup {
		panic("chat: duplicate handler for verb " + h.Verb())
	}
	d.handlers[h.Verb()] = h
}

func (d *Dispatcher) Verbs() []string {
	out := make([]string, 0, len(d.handlers))
	for v := range d.handlers {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Dispatch 每帧一个超时 ctx；handler panic 转成内部错误回给客户端
func (d *Dispatcher) Dispatch(c *WsConn, f *Frame) (err error) {
	h, ok := d.handlers[f.Type]
	if !ok {
		return errs.ErrInvalidRequest.WrapMsg("unknown frame type", "type", f.Type)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if perr := safe.Run(func() { err = h.Handle(ctx, c, f) }); perr != nil {
		return perr
	}
	return err
}
