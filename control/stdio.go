package control

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// ServeStdio runs the control channel over newline-delimited JSON frames:
// commands arrive on r, replies go to w. This is the embedding surface for a
// foreground app that supervises the engine as a child process.
//
// Malformed lines are logged and skipped. Returns when r is exhausted or ctx
// is cancelled.
func ServeStdio(ctx context.Context, d *Dispatcher, r io.Reader, w io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	enc := json.NewEncoder(w)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			logger.Warn("control: dropping malformed frame", "error", err)
			continue
		}

		reply, err := d.Dispatch(ctx, msg)
		if err != nil {
			logger.Warn("control: dispatch failed", "kind", msg.Kind, "error", err)
			continue
		}
		if reply == nil {
			continue
		}

		if err := enc.Encode(reply); err != nil {
			return fmt.Errorf("control: write reply: %w", err)
		}
	}
	return scanner.Err()
}

