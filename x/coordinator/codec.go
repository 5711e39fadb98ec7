package coordinator

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/compose-network/proof-orchestrator/x/prover"
)

// DefaultMaxFrameSize bounds a single protocol frame; proofs are the
// largest payload and compressed proofs sit well under this.
const DefaultMaxFrameSize = 64 * 1024 * 1024

// ErrFrameTooLarge is returned when a peer announces a frame above the
// configured limit.
type ErrFrameTooLarge struct {
	Size int
	Max  int
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("frame of %d bytes exceeds limit of %d", e.Size, e.Max)
}

// Codec reads and writes protocol messages as length-prefixed JSON
// frames: a 4-byte big-endian payload length followed by the payload.
type Codec struct {
	maxFrameSize int
}

// NewCodec returns a codec with the given frame limit; zero or negative
// selects DefaultMaxFrameSize.
func NewCodec(maxFrameSize int) *Codec {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Codec{maxFrameSize: maxFrameSize}
}

// MaxFrameSize returns the configured frame limit.
func (c *Codec) MaxFrameSize() int {
	return c.maxFrameSize
}

// ReadMessage reads one framed message from r.
func (c *Codec) ReadMessage(r io.Reader) (*prover.Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := int(binary.BigEndian.Uint32(header[:]))
	if size > c.maxFrameSize {
		return nil, &ErrFrameTooLarge{Size: size, Max: c.maxFrameSize}
	}
	if size == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read frame payload: %w", err)
	}

	var msg prover.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// WriteMessage writes one framed message to w.
func (c *Codec) WriteMessage(w io.Writer, msg *prover.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if len(payload) > c.maxFrameSize {
		return &ErrFrameTooLarge{Size: len(payload), Max: c.maxFrameSize}
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}
