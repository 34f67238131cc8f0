// Package control is the engine's command surface: a bidirectional message
// channel carrying settings updates, boosts and sync requests, plus the MCP
// tool registrations built on top of it.
//
// Requests and replies travel over the same channel, so every message is
// tagged with a direction flag and the dispatcher ignores replies. Without
// the guard a reply would be re-dispatched as a fresh command.
package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/boostme/boostme/idgen"
	"github.com/boostme/boostme/settings"
)

// Kind enumerates the commands the engine accepts.
type Kind string

const (
	KindSaveSettings Kind = "save_settings"
	KindGetSettings  Kind = "get_settings"
	KindBoost        Kind = "boost"
	KindSyncNow      Kind = "sync_now"
	KindStatus       Kind = "status"
)

// Message is one frame on the control channel. Reply distinguishes responses
// from commands; To correlates a reply with the command it answers.
type Message struct {
	ID    string `json:"id"`
	Reply bool   `json:"reply,omitempty"`
	To    string `json:"to,omitempty"`
	Kind  Kind   `json:"kind"`

	// Command payloads.
	Settings *settings.Settings `json:"settings,omitempty"`

	// Reply payloads.
	OK     bool           `json:"ok,omitempty"`
	Absent bool           `json:"absent,omitempty"`
	Status map[string]any `json:"status,omitempty"`
	Err    string         `json:"error,omitempty"`
}

// Engine is the subset of the notification engine the control channel drives.
type Engine interface {
	SaveSettings(ctx context.Context, st *settings.Settings) error
	GetSettings(ctx context.Context) (*settings.Settings, error)
	Boost(ctx context.Context)
	SyncNow(ctx context.Context) bool
	Status(ctx context.Context) map[string]any
}

// Dispatcher turns command messages into engine calls and builds the reply.
type Dispatcher struct {
	eng   Engine
	newID idgen.Generator
}

// NewDispatcher wraps eng.
func NewDispatcher(eng Engine) *Dispatcher {
	return &Dispatcher{eng: eng, newID: idgen.Prefixed("msg_", idgen.Default)}
}

// Dispatch handles one frame. Replies are dropped (nil, nil): they are the
// other side of the conversation, not commands.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (*Message, error) {
	if msg.Reply {
		return nil, nil
	}

	reply := &Message{ID: d.newID(), Reply: true, To: msg.ID, Kind: msg.Kind}
	switch msg.Kind {
	case KindSaveSettings:
		if msg.Settings == nil {
			reply.Err = "save_settings requires a settings payload"
			return reply, nil
		}
		if err := d.eng.SaveSettings(ctx, msg.Settings); err != nil {
			reply.Err = err.Error()
			return reply, nil
		}
		reply.OK = true

	case KindGetSettings:
		st, err := d.eng.GetSettings(ctx)
		switch {
		case errors.Is(err, settings.ErrNoSettings):
			// Absence tells the foreground to open onboarding.
			reply.Absent = true
		case err != nil:
			reply.Err = err.Error()
		default:
			reply.OK = true
			reply.Settings = st
		}

	case KindBoost:
		d.eng.Boost(ctx)
		reply.OK = true

	case KindSyncNow:
		reply.OK = d.eng.SyncNow(ctx)

	case KindStatus:
		reply.OK = true
		reply.Status = d.eng.Status(ctx)

	default:
		return nil, fmt.Errorf("control: unknown command kind %q", msg.Kind)
	}
	return reply, nil
}
