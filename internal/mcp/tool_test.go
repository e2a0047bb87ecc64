package mcp

import (
	"errors"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jakesimonds/Creator/internal/generator"
)

func TestDecodeResultRejectsMissingID(t *testing.T) {
	res, err := encodeResult(generator.ModelHandle{Status: "PENDING"}, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := decodeResult(res); !errors.Is(err, generator.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestDecodeResultRejectsOddContent(t *testing.T) {
	if _, err := decodeResult(nil); !errors.Is(err, generator.ErrPermanent) {
		t.Fatalf("nil result: %v", err)
	}
	res := &sdk.CallToolResult{Content: []sdk.Content{&sdk.ImageContent{MIMEType: "image/png"}}}
	if _, err := decodeResult(res); !errors.Is(err, generator.ErrPermanent) {
		t.Fatalf("image content: %v", err)
	}
}
