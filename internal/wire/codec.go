// SPDX-License-Identifier: MPL-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// Kind tags a frame's payload so the reader knows which type to decode
// into without a schema negotiation step.
type Kind uint8

const (
	KindSubgraphRequest Kind = iota
	KindSubgraphAck
	KindPipelineResult
	KindCancelPipeline
)

func (k Kind) String() string {
	switch k {
	case KindSubgraphRequest:
		return "SubgraphRequest"
	case KindSubgraphAck:
		return "SubgraphAck"
	case KindPipelineResult:
		return "PipelineResult"
	case KindCancelPipeline:
		return "CancelPipeline"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// maxFrameSize bounds a single control frame; the control protocol
// carries node lists and edge lists, never stream payload, so this is
// generous without risking an unbounded allocation from a hostile peer.
const maxFrameSize = 16 << 20

// WriteFrame encodes kind+payload with gob and writes it as a 4-byte
// big-endian length prefix followed by the encoded bytes.
func WriteFrame(w io.Writer, kind Kind, payload any) error {
	var body bytes.Buffer
	if err := body.WriteByte(byte(kind)); err != nil {
		return err
	}
	if err := gob.NewEncoder(&body).Encode(payload); err != nil {
		return fmt.Errorf("wire: encode %s: %w", kind, err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(body.Len()))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// ReadFrame reads one length-prefixed frame and returns its kind plus
// the still-encoded payload bytes for the caller to gob-decode into the
// concrete type its Kind implies.
func ReadFrame(r io.Reader) (Kind, []byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 || n > maxFrameSize {
		return 0, nil, fmt.Errorf("wire: frame length %d out of bounds", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return Kind(body[0]), body[1:], nil
}

// Decode gob-decodes a ReadFrame payload into v.
func Decode(payload []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(payload)).Decode(v)
}
