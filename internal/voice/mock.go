package voice

import (
	"context"
	"time"
)

// Mock returns a tiny deterministic payload instead of calling a vendor.
type Mock struct {
	Delay time.Duration
}

func NewMock() *Mock { return &Mock{} }

// mockFrameHeader is an MPEG-1 Layer III frame sync header.
var mockFrameHeader = []byte{0xFF, 0xFB, 0x90, 0x64}

func (m *Mock) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return Audio{}, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return Audio{}, err
	}
	data := make([]byte, 0, len(mockFrameHeader)+len(req.Text))
	data = append(data, mockFrameHeader...)
	data = append(data, req.Text...)
	return Audio{
		Data:    data,
		Format:  ContentType(req.OutputFormat),
		ModelID: req.ModelID,
		VoiceID: req.VoiceID,
	}, nil
}
