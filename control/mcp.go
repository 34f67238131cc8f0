package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/boostme/boostme/settings"
)

// Endpoint is a transport-agnostic handler: typed request in, response out.
type Endpoint func(ctx context.Context, req any) (any, error)

// mcpDecodeResult holds the decoded request for an MCP tool call.
type mcpDecodeResult struct {
	Request any
}

// registerMCPTool bridges an Endpoint onto an MCP server. Tool errors are
// reported through the MCP result, not the transport.
func registerMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode func(*mcp.CallToolRequest) (*mcpDecodeResult, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		resp, err := endpoint(ctx, decoded.Request)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// RegisterMCP registers the engine's control operations as MCP tools.
func RegisterMCP(srv *mcp.Server, eng Engine) {
	registerSaveSettingsTool(srv, eng)
	registerGetSettingsTool(srv, eng)
	registerBoostTool(srv, eng)
	registerSyncNowTool(srv, eng)
	registerStatusTool(srv, eng)
}

// --- save settings ---

func registerSaveSettingsTool(srv *mcp.Server, eng Engine) {
	tool := &mcp.Tool{
		Name:        "boostme_save_settings",
		Description: "Save notification preferences: time window, daily quota, tags, enable flag.",
		InputSchema: inputSchema(map[string]any{
			"time":                  map[string]any{"type": "string", "enum": []string{"workday", "weekend", "alltimes"}},
			"maxQuotes":             map[string]any{"type": "integer", "description": "Daily notification quota"},
			"receivedFromCommunity": map[string]any{"type": "boolean"},
			"tag":                   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"enabled":               map[string]any{"type": "boolean"},
			"pushToken":             map[string]any{"type": "string"},
			"timezone":              map[string]any{"type": "string"},
		}, []string{"time", "maxQuotes"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		st := req.(*settings.Settings)
		if err := eng.SaveSettings(ctx, st); err != nil {
			return nil, err
		}
		return map[string]any{"saved": true}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*mcpDecodeResult, error) {
		var st settings.Settings
		if err := json.Unmarshal(req.Params.Arguments, &st); err != nil {
			return nil, err
		}
		return &mcpDecodeResult{Request: &st}, nil
	}

	registerMCPTool(srv, tool, endpoint, decode)
}

// --- get settings ---

func registerGetSettingsTool(srv *mcp.Server, eng Engine) {
	tool := &mcp.Tool{
		Name:        "boostme_get_settings",
		Description: "Read the saved notification preferences. Returns absent=true when never configured.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		st, err := eng.GetSettings(ctx)
		if errors.Is(err, settings.ErrNoSettings) {
			return map[string]any{"absent": true}, nil
		}
		if err != nil {
			return nil, err
		}
		return st, nil
	}

	registerMCPTool(srv, tool, endpoint, decodeEmpty)
}

// --- boost ---

func registerBoostTool(srv *mcp.Server, eng Engine) {
	tool := &mcp.Tool{
		Name:        "boostme_boost",
		Description: "Arm the scheduler for a near-immediate notification and trigger a catalog sync.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		eng.Boost(ctx)
		return map[string]any{"boosted": true}, nil
	}

	registerMCPTool(srv, tool, endpoint, decodeEmpty)
}

// --- sync now ---

func registerSyncNowTool(srv *mcp.Server, eng Engine) {
	tool := &mcp.Tool{
		Name:        "boostme_sync_now",
		Description: "Synchronously refresh the local quote catalog from the remote service.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return map[string]any{"synced": eng.SyncNow(ctx)}, nil
	}

	registerMCPTool(srv, tool, endpoint, decodeEmpty)
}

// --- status ---

func registerStatusTool(srv *mcp.Server, eng Engine) {
	tool := &mcp.Tool{
		Name:        "boostme_status",
		Description: "Report scheduler state, today's counters and catalog size.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return eng.Status(ctx), nil
	}

	registerMCPTool(srv, tool, endpoint, decodeEmpty)
}

func decodeEmpty(*mcp.CallToolRequest) (*mcpDecodeResult, error) {
	return &mcpDecodeResult{}, nil
}
