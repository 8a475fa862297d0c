package hub

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/workshoplabs/workshop/pkg/types"
)

// Frame is a single push-stream unit: either an envelope frame carrying an
// id line and a data line, or a comment-only keepalive.
type Frame struct {
	ID      string
	Data    []byte
	Comment string
}

// Encode renders the frame in wire format, terminated by a blank line
func (f Frame) Encode() []byte {
	var buf bytes.Buffer
	if f.Comment != "" {
		fmt.Fprintf(&buf, ": %s\n\n", f.Comment)
		return buf.Bytes()
	}
	fmt.Fprintf(&buf, "id: %s\ndata: %s\n\n", f.ID, f.Data)
	return buf.Bytes()
}

// EnvelopeFrame encodes an envelope as a push-stream frame
func EnvelopeFrame(env *types.Envelope) (Frame, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return Frame{ID: env.ID, Data: data}, nil
}

// KeepaliveFrame is the comment-only frame written on the keepalive tick
var KeepaliveFrame = Frame{Comment: "keepalive"}
