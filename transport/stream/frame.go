package stream

import (
	"encoding/binary"
	"io"

	"github.com/wippyai/nativebridge/errors"
)

// DefaultMaxFrame bounds a frame read from the peer.
const DefaultMaxFrame = 64 << 20

// WriteFrame writes p as [length u32][p] in one write.
func WriteFrame(w io.Writer, p []byte) error {
	buf := make([]byte, 4+len(p))
	binary.BigEndian.PutUint32(buf, uint32(len(p)))
	copy(buf[4:], p)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame written by WriteFrame. It returns io.EOF only
// when the stream ends cleanly between frames.
func ReadFrame(r io.Reader, maxFrame int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if maxFrame > 0 && uint64(n) > uint64(maxFrame) {
		return nil, errors.New(errors.PhaseTransport, errors.KindOutOfBounds).
			Detail("frame of %d bytes exceeds limit %d", n, maxFrame).
			Value(n).
			Build()
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}
