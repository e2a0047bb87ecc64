// Package mcp exposes model generation as an MCP tool and consumes it from
// the agent over a websocket or a spawned stdio server.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jakesimonds/Creator/internal/generator"
)

// ToolName is the MCP tool that submits a generation.
const ToolName = "generate_model"

const transientPrefix = "transient: "

type generateArgs struct {
	Prompt string `json:"prompt"`
}

// encodeResult renders a tool outcome. Failures are reported in-band with
// IsError so the caller can tell transient from permanent ones.
func encodeResult(h generator.ModelHandle, err error) (*sdk.CallToolResult, error) {
	if err != nil {
		msg := err.Error()
		if errors.Is(err, generator.ErrTransient) {
			msg = transientPrefix + msg
		}
		return &sdk.CallToolResult{
			IsError: true,
			Content: []sdk.Content{&sdk.TextContent{Text: msg}},
		}, nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(data)}},
	}, nil
}

func decodeResult(res *sdk.CallToolResult) (generator.ModelHandle, error) {
	if res == nil || len(res.Content) == 0 {
		return generator.ModelHandle{}, fmt.Errorf("%w: empty tool result", generator.ErrPermanent)
	}
	text, ok := res.Content[0].(*sdk.TextContent)
	if !ok {
		return generator.ModelHandle{}, fmt.Errorf("%w: unexpected content type %T", generator.ErrPermanent, res.Content[0])
	}
	if res.IsError {
		if msg, ok := strings.CutPrefix(text.Text, transientPrefix); ok {
			return generator.ModelHandle{}, fmt.Errorf("%w: %s", generator.ErrTransient, msg)
		}
		return generator.ModelHandle{}, fmt.Errorf("%w: %s", generator.ErrPermanent, text.Text)
	}
	var h generator.ModelHandle
	if err := json.Unmarshal([]byte(text.Text), &h); err != nil {
		return generator.ModelHandle{}, fmt.Errorf("%w: decode tool result: %v", generator.ErrPermanent, err)
	}
	if h.ID == "" {
		return generator.ModelHandle{}, fmt.Errorf("%w: tool result has no model id", generator.ErrPermanent)
	}
	return h, nil
}
