package eventlog

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrCorruptFrame is returned when a frame fails its checksum or is
// truncated. Frames before the corruption are still returned.
var ErrCorruptFrame = errors.New("corrupt event frame")

// frameHeaderSize is 4 bytes payload length + 8 bytes xxhash64.
const frameHeaderSize = 12

// FileSink appends events to a file as checksummed frames:
//
//	[len u32][xxhash64 u64][json payload]
//
// The checksum covers the payload only. A torn tail write is detected on
// read and everything before it survives.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	path string
	now  func() time.Time
}

// OpenFileSink opens (or creates) the event file for appending.
func OpenFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open event file: %w", err)
	}
	return &FileSink{f: f, path: path, now: time.Now}, nil
}

// Write appends one framed event.
func (s *FileSink) Write(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope{
		Type: ev.EventType(),
		At:   s.now().UTC(),
		Body: ev,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint64(frame[4:12], xxhash.Sum64(payload))
	copy(frame[frameHeaderSize:], payload)

	if _, err := s.f.Write(frame); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Close syncs and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// RecordedEvent is one event read back from a file sink.
type RecordedEvent struct {
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Body json.RawMessage `json:"body"`
}

// ReadEventFile decodes every intact frame. On a checksum mismatch or a
// truncated tail it returns the frames read so far along with
// ErrCorruptFrame.
func ReadEventFile(path string) ([]RecordedEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event file: %w", err)
	}

	var out []RecordedEvent
	for off := 0; off < len(data); {
		if len(data)-off < frameHeaderSize {
			return out, fmt.Errorf("%w: truncated header at offset %d", ErrCorruptFrame, off)
		}
		n := int(binary.BigEndian.Uint32(data[off : off+4]))
		sum := binary.BigEndian.Uint64(data[off+4 : off+12])
		off += frameHeaderSize
		if len(data)-off < n {
			return out, fmt.Errorf("%w: truncated payload at offset %d", ErrCorruptFrame, off)
		}
		payload := data[off : off+n]
		if xxhash.Sum64(payload) != sum {
			return out, fmt.Errorf("%w: checksum mismatch at offset %d", ErrCorruptFrame, off)
		}
		var rec RecordedEvent
		if err := json.Unmarshal(payload, &rec); err != nil {
			return out, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
		}
		out = append(out, rec)
		off += n
	}
	return out, nil
}

var _ io.Closer = (*FileSink)(nil)
