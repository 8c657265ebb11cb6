package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Direction tells which way a recorded message travelled.
type Direction string

const (
	// ToTarget is debugger to target traffic.
	ToTarget Direction = "to_target"

	// ToDebugger is target to debugger traffic.
	ToDebugger Direction = "to_debugger"
)

// Entry is one line of a transcript.
type Entry struct {
	Time      time.Time       `json:"time"`
	Session   uuid.UUID       `json:"session"`
	Direction Direction       `json:"direction"`
	Message   json.RawMessage `json:"message"`
}

// Config configures a Recorder.
type Config struct {
	// Dir receives one <session>.jsonl file per session. If empty, transcripts are
	// written to a temporary file that is removed once it has been uploaded.
	Dir string

	// Uploader, if set, receives every transcript when it is closed.
	Uploader Uploader

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Recorder opens transcripts for proxy sessions.
type Recorder struct {
	dir      string
	uploader Uploader
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Recorder. The transcript directory is created if needed.
func New(cfg Config) (*Recorder, error) {
	if cfg.Dir == "" && cfg.Uploader == nil {
		return nil, fmt.Errorf("recorder: no directory and no uploader")
	}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("recorder: %w", err)
		}
	}

	r := &Recorder{
		dir:      cfg.Dir,
		uploader: cfg.Uploader,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "recorder")
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Open starts the transcript of session.
func (r *Recorder) Open(session uuid.UUID) (*Transcript, error) {
	name := session.String() + ".jsonl"

	var (
		f   *os.File
		err error
	)
	if r.dir != "" {
		f, err = os.OpenFile(filepath.Join(r.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	} else {
		f, err = os.CreateTemp("", "cdpproxy-*.jsonl")
	}
	if err != nil {
		return nil, fmt.Errorf("recorder: open transcript: %w", err)
	}

	w := bufio.NewWriter(f)
	return &Transcript{
		session:   session,
		name:      name,
		file:      f,
		w:         w,
		enc:       json.NewEncoder(w),
		temporary: r.dir == "",
		uploader:  r.uploader,
		logger:    r.logger.With("session", session),
		now:       r.now,
	}, nil
}

// Transcript is the recording of one session. It is safe for concurrent use.
type Transcript struct {
	session   uuid.UUID
	name      string
	temporary bool
	uploader  Uploader
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	enc    *json.Encoder
	count  int
	err    error
	closed bool
}

// Session returns the session the transcript belongs to.
func (t *Transcript) Session() uuid.UUID {
	return t.session
}

// Path returns the transcript file.
func (t *Transcript) Path() string {
	return t.file.Name()
}

// Record appends msg. The first write error is kept and returned by Close; later
// records are dropped.
func (t *Transcript) Record(dir Direction, msg json.RawMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.err != nil {
		return
	}
	entry := Entry{
		Time:      t.now().UTC(),
		Session:   t.session,
		Direction: dir,
		Message:   msg,
	}
	if err := t.enc.Encode(entry); err != nil {
		t.err = err
		t.logger.Warn("transcript write failed", "error", err)
		return
	}
	t.count++
}

// Len returns the number of recorded entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Close flushes the transcript and hands it to the uploader, if any. It is idempotent.
func (t *Transcript) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true

	err := t.err
	if ferr := t.w.Flush(); err == nil {
		err = ferr
	}
	if cerr := t.file.Close(); err == nil {
		err = cerr
	}
	count := t.count
	t.mu.Unlock()

	if err != nil {
		return fmt.Errorf("recorder: close transcript: %w", err)
	}

	t.logger.Info("transcript closed", "path", t.file.Name(), "entries", count)

	if t.uploader == nil {
		return nil
	}
	if t.temporary {
		defer os.Remove(t.file.Name())
	}

	f, err := os.Open(t.file.Name())
	if err != nil {
		return fmt.Errorf("recorder: reopen transcript: %w", err)
	}
	defer f.Close()

	if err := t.uploader.Upload(ctx, t.name, f); err != nil {
		t.logger.Error("transcript upload failed", "error", err)
		return err
	}
	t.logger.Info("transcript uploaded", "key", t.name)
	return nil
}
