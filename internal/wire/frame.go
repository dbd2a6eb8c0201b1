package wire

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize caps a single frame body.
const MaxFrameSize = 1 << 20

const headerSize = 4

var (
	// ErrFrameTooLarge is returned for frames whose declared length exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("wire: frame too large")
	// ErrMalformed marks a frame or payload that could not be decoded.
	ErrMalformed = errors.New("wire: malformed message")
)

// WriteFrame encodes v as JSON and writes it with a 4-byte big-endian length prefix.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[headerSize:], body)
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one frame and decodes it into v. A clean close before the
// header yields io.EOF; a truncated frame yields io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, v any) error {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Codec reads and writes frames over one stream. Reads are buffered. Writes
// are serialised so a frame is never interleaved with another.
type Codec struct {
	r  *bufio.Reader
	w  io.Writer
	mu sync.Mutex
}

// NewCodec wraps rw.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{r: bufio.NewReader(rw), w: rw}
}

// ReadRequest reads the next request frame.
func (c *Codec) ReadRequest() (Request, error) {
	var req Request
	err := ReadFrame(c.r, &req)
	return req, err
}

// ReadResponse reads the next response frame.
func (c *Codec) ReadResponse() (Response, error) {
	var resp Response
	err := ReadFrame(c.r, &resp)
	return resp, err
}

// Write sends one frame.
func (c *Codec) Write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteFrame(c.w, v)
}
