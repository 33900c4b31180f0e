package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize caps one length-prefixed frame
const MaxFrameSize = 16 << 20

// ErrFrameTooLarge is returned for frames over MaxFrameSize
var ErrFrameTooLarge = errors.New("frame too large")

// Writer writes length-prefixed frames. Safe for concurrent use.
type Writer struct {
	codec Codec
	mu    sync.Mutex
	w     io.Writer
}

// NewWriter creates a frame writer
func NewWriter(w io.Writer, codec Codec) *Writer {
	return &Writer{codec: codec, w: w}
}

// WriteFrame encodes and writes one frame
func (w *Writer) WriteFrame(f Frame) error {
	body, err := w.codec.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Kind, err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(buf)
	return err
}

// Reader reads length-prefixed frames
type Reader struct {
	codec Codec
	r     *bufio.Reader
}

// NewReader creates a frame reader
func NewReader(r io.Reader, codec Codec) *Reader {
	return &Reader{codec: codec, r: bufio.NewReader(r)}
}

// ReadFrame blocks for the next frame. Returns io.EOF at a clean end of
// stream.
func (r *Reader) ReadFrame() (Frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		return Frame{}, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}

	var f Frame
	if err := r.codec.Unmarshal(body, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}
