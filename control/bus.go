package control

import (
	"context"
	"log/slog"
	"sync"
)

// Bus is an in-process broadcast channel: every subscriber sees every frame,
// including frames it posted itself. The engine side therefore receives its
// own replies back; Dispatch's reply guard keeps them from re-dispatching.
type Bus struct {
	mu     sync.Mutex
	subs   []chan Message
	closed bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new listener. The returned channel is buffered;
// listeners that fall behind lose frames rather than blocking the bus.
func (b *Bus) Subscribe() <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Message, 16)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Post broadcasts msg to every subscriber.
func (b *Bus) Post(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
			slog.Warn("control: slow subscriber, dropping frame", "kind", msg.Kind)
		}
	}
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// Attach subscribes the dispatcher to the bus and serves until ctx is
// cancelled or the bus closes. Replies are posted back onto the bus.
func Attach(ctx context.Context, d *Dispatcher, b *Bus, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	sub := b.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			reply, err := d.Dispatch(ctx, msg)
			if err != nil {
				logger.Warn("control: dispatch failed", "kind", msg.Kind, "error", err)
				continue
			}
			if reply != nil {
				b.Post(*reply)
			}
		}
	}
}
