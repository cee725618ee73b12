package bus

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameBytes bounds a single frame to guard against a misbehaving
// peer driving an unbounded allocation.
const maxFrameBytes = 16 << 20 // 16 MiB

// writeFrame writes a length-prefixed frame: a 4-byte big-endian length
// followed by data.
func writeFrame(w io.Writer, data []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFrame reads one length-prefixed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("bus: frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// message is the two-frame unit exchanged between publishers, the
// proxy, and subscribers: a topic and a canonical-JSON payload.
type message struct {
	topic   string
	payload []byte
}

func writeMessage(w io.Writer, m message) error {
	if err := writeFrame(w, []byte(m.topic)); err != nil {
		return err
	}
	return writeFrame(w, m.payload)
}

func readMessage(r io.Reader) (message, error) {
	topic, err := readFrame(r)
	if err != nil {
		return message{}, err
	}
	payload, err := readFrame(r)
	if err != nil {
		return message{}, err
	}
	return message{topic: string(topic), payload: payload}, nil
}

// subscription control frames: a single byte action (subAction or
// unsubAction) followed by the prefix bytes, mirroring XPUB_VERBOSE's
// \x01/\x00-prefixed subscribe/unsubscribe frames.
const (
	subAction   byte = 1
	unsubAction byte = 0
)

func writeSubFrame(w io.Writer, action byte, prefix string) error {
	data := make([]byte, 1+len(prefix))
	data[0] = action
	copy(data[1:], prefix)
	return writeFrame(w, data)
}

func readSubFrame(data []byte) (action byte, prefix string, ok bool) {
	if len(data) == 0 {
		return 0, "", false
	}
	return data[0], string(data[1:]), true
}
