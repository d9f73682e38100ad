package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/iedlink/iedlink-go/pkg/log"
)

// LengthPrefixSize is the size of the big-endian frame length prefix.
const LengthPrefixSize = 4

// DefaultMaxMessageSize bounds a frame payload unless configured otherwise.
const DefaultMaxMessageSize = 1 << 20

var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrFrameTruncated  = errors.New("frame truncated")
)

// FramerConfig configures a Framer. The zero value is usable.
type FramerConfig struct {
	// MaxMessageSize applies to both directions (default 1 MB).
	MaxMessageSize uint32

	// Logger receives a transport layer event per frame (optional).
	Logger     log.Logger
	ConnID     string
	RemoteAddr string
}

// Framer reads and writes length-prefixed frames on a byte stream.
// WriteFrame may be called concurrently. ReadFrame is for one reader.
type Framer struct {
	rw      io.ReadWriter
	maxSize uint32

	logger log.Logger
	connID string
	remote string

	writeMu  sync.Mutex
	writeBuf []byte

	header [LengthPrefixSize]byte
}

// NewFramer creates a framer over rw.
func NewFramer(rw io.ReadWriter, cfg FramerConfig) *Framer {
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Framer{
		rw:      rw,
		maxSize: cfg.MaxMessageSize,
		logger:  cfg.Logger,
		connID:  cfg.ConnID,
		remote:  cfg.RemoteAddr,
	}
}

func (f *Framer) checkSize(n uint64) error {
	if n == 0 {
		return ErrMessageEmpty
	}
	if n > uint64(f.maxSize) {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, n, f.maxSize)
	}
	return nil
}

// WriteFrame writes the prefix and payload with a single Write call so
// frames from concurrent writers never interleave.
func (f *Framer) WriteFrame(data []byte) error {
	if err := f.checkSize(uint64(len(data))); err != nil {
		return err
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.writeBuf = binary.BigEndian.AppendUint32(f.writeBuf[:0], uint32(len(data)))
	f.writeBuf = append(f.writeBuf, data...)
	if _, err := f.rw.Write(f.writeBuf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	// Large payloads are not kept around between writes.
	if cap(f.writeBuf) > 64<<10 {
		f.writeBuf = nil
	}

	f.capture(data, log.DirectionOut)
	return nil
}

// ReadFrame returns the next payload without its prefix. A clean end of
// stream between frames is io.EOF; anything cut short is ErrFrameTruncated.
func (f *Framer) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(f.rw, f.header[:]); err != nil {
		return nil, readErr(err, "prefix")
	}

	n := binary.BigEndian.Uint32(f.header[:])
	if err := f.checkSize(uint64(n)); err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(f.rw, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrFrameTruncated
		}
		return nil, readErr(err, "payload")
	}

	f.capture(payload, log.DirectionIn)
	return payload, nil
}

func readErr(err error, part string) error {
	switch {
	case err == io.EOF:
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return ErrFrameTruncated
	default:
		return fmt.Errorf("read frame %s: %w", part, err)
	}
}

func (f *Framer) capture(data []byte, dir log.Direction) {
	if f.logger == nil {
		return
	}
	f.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: f.connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		RemoteAddr:   f.remote,
		Frame:        log.NewFrameEvent(data),
	})
}

// FrameSize returns the on-wire size of a payload including its prefix.
func FrameSize(payloadSize int) int {
	return LengthPrefixSize + payloadSize
}
