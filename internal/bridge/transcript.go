package bridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wifiprov/internal/logging"
	"github.com/muurk/wifiprov/internal/protocol"
)

// redacted replaces passwords in transcripts
const redacted = "[redacted]"

// TranscriptEntry is one captured message
type TranscriptEntry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Session    string          `json:"session"`
	MessageNum int             `json:"message_num"`
	RemoteAddr string          `json:"remote_addr"`
	Direction  string          `json:"direction"`
	Kind       string          `json:"kind"`
	Length     int             `json:"length"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Transcript appends a session's messages to a JSON Lines file.
// A nil *Transcript records nothing.
type Transcript struct {
	path       string
	session    string
	remoteAddr string

	mu         sync.Mutex
	messageNum int
}

// NewTranscript returns nil when dir is empty (capture disabled).
func NewTranscript(dir, session, remoteAddr string) *Transcript {
	if dir == "" {
		return nil
	}
	short := session
	if len(short) > 8 {
		short = short[:8]
	}
	return &Transcript{
		path: filepath.Join(dir, fmt.Sprintf("session-%s-%s.jsonl",
			time.Now().Format("20060102-150405"), short)),
		session:    session,
		remoteAddr: remoteAddr,
	}
}

// Path returns the file the transcript appends to
func (t *Transcript) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// RecordCommand captures an inbound command with its password replaced.
func (t *Transcript) RecordCommand(cmd *protocol.Command, length int) {
	if t == nil {
		return
	}
	clean := *cmd
	if clean.Password != "" {
		clean.Password = redacted
	}
	payload, err := json.Marshal(clean)
	if err != nil {
		payload = nil
	}
	t.record("browser->bridge", string(cmd.Type), length, payload)
}

// RecordInvalid captures an inbound message that was not understood.
// Its payload is dropped because it may hold credentials.
func (t *Transcript) RecordInvalid(length int) {
	if t == nil {
		return
	}
	t.record("browser->bridge", "invalid", length, nil)
}

// RecordEvent captures an outbound event
func (t *Transcript) RecordEvent(kind protocol.EventType, data []byte) {
	if t == nil {
		return
	}
	t.record("bridge->browser", string(kind), len(data), data)
}

func (t *Transcript) record(direction, kind string, length int, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messageNum++
	entry := TranscriptEntry{
		Timestamp:  time.Now(),
		Session:    t.session,
		MessageNum: t.messageNum,
		RemoteAddr: t.remoteAddr,
		Direction:  direction,
		Kind:       kind,
		Length:     length,
		Payload:    payload,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		logging.Error("Failed to marshal transcript entry", zap.Error(err))
		return
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0700); err != nil {
		logging.Error("Failed to create transcript directory",
			zap.String("filename", t.path),
			zap.Error(err),
		)
		return
	}

	// Append to JSONL file (JSON Lines format - one JSON object per line)
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		logging.Error("Failed to open transcript file",
			zap.String("filename", t.path),
			zap.Error(err),
		)
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(data, '\n')); err != nil {
		logging.Error("Failed to write to transcript file",
			zap.String("filename", t.path),
			zap.Error(err),
		)
		return
	}

	logging.Debug("Saved message to transcript",
		zap.String("filename", t.path),
		zap.Int("message_num", t.messageNum),
	)
}
