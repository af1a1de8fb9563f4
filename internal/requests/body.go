package requests

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/bridge"
	"github.com/bytedance/sonic"
)

// EncodeBody is the default BodyEncoder. Text is sent as is, bytes and blobs
// as base64; any other value is sent as JSON.
func EncodeBody(_ context.Context, data interface{}) (*bridge.Body, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case string:
		return &bridge.Body{Data: v}, nil
	case []byte:
		return &bridge.Body{Data: base64.StdEncoding.EncodeToString(v), Base64: true}, nil
	case *Blob:
		return &bridge.Body{Data: base64.StdEncoding.EncodeToString(v.Data), Base64: true, ContentType: v.Type}, nil
	default:
		s, err := sonic.MarshalString(v)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		return &bridge.Body{Data: s, ContentType: "application/json"}, nil
	}
}

// DecodeBody returns the raw bytes of an encoded body.
func DecodeBody(b *bridge.Body) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	if !b.Base64 {
		return []byte(b.Data), nil
	}
	data, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return data, nil
}
