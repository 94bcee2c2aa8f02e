package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bulwark-run/ecosphere/pkg/canonicalize"
	"github.com/bulwark-run/ecosphere/pkg/epack"
)

// File is a durable Sink that appends one NDJSON line per Record to a
// per-session file under BaseDir. Each session's file is opened in
// O_APPEND mode, so concurrent writers on the same machine cannot
// interleave partial lines.
type File struct {
	BaseDir string

	mu       sync.Mutex
	lastSeq  map[string]uint64
	fhCache  map[string]*os.File
}

// NewFile creates a file-backed sink rooted at baseDir, creating the
// directory if it does not already exist.
func NewFile(baseDir string) (*File, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create base dir: %w", err)
	}
	return &File{
		BaseDir: baseDir,
		lastSeq: make(map[string]uint64),
		fhCache: make(map[string]*os.File),
	}, nil
}

func (f *File) path(sessionID string) string {
	return filepath.Join(f.BaseDir, sessionID+".ndjson")
}

func (f *File) handle(sessionID string) (*os.File, error) {
	if fh, ok := f.fhCache[sessionID]; ok {
		return fh, nil
	}
	fh, err := os.OpenFile(f.path(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	f.fhCache[sessionID] = fh
	return fh, nil
}

func (f *File) Append(_ context.Context, sessionID string, record epack.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if last, ok := f.lastSeq[sessionID]; ok && last+1 != record.Seq {
		return fmt.Errorf("sink: out-of-order append for session %s: have seq %d, got %d", sessionID, last, record.Seq)
	}

	fh, err := f.handle(sessionID)
	if err != nil {
		return fmt.Errorf("sink: open session file: %w", err)
	}

	// The on-disk line is lexicographically-sorted canonical JSON (spec.md
	// §6 "Persisted format"), not encoding/json's field-declaration order;
	// decoding on read/Iter still uses encoding/json since JSON's key order
	// carries no meaning to a decoder.
	line, err := canonicalize.JCS(record)
	if err != nil {
		return fmt.Errorf("sink: marshal record: %w", err)
	}
	line = append(line, '\n')
	if _, err := fh.Write(line); err != nil {
		return fmt.Errorf("sink: write record: %w", err)
	}
	if err := fh.Sync(); err != nil {
		return fmt.Errorf("sink: sync record: %w", err)
	}

	f.lastSeq[sessionID] = record.Seq
	return nil
}

func (f *File) Iter(ctx context.Context, sessionID string) (<-chan epack.Record, error) {
	fh, err := os.Open(f.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			empty := make(chan epack.Record)
			close(empty)
			return empty, nil
		}
		return nil, fmt.Errorf("sink: open session file: %w", err)
	}

	out := make(chan epack.Record)
	go func() {
		defer close(out)
		defer func() { _ = fh.Close() }()

		scanner := bufio.NewScanner(fh)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			var rec epack.Record
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *File) LastSeq(_ context.Context, sessionID string) (uint64, error) {
	f.mu.Lock()
	if last, ok := f.lastSeq[sessionID]; ok {
		f.mu.Unlock()
		return last, nil
	}
	f.mu.Unlock()

	fh, err := os.Open(f.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer func() { _ = fh.Close() }()

	var last uint64
	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var rec epack.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return 0, err
		}
		last = rec.Seq
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.lastSeq[sessionID] = last
	f.mu.Unlock()
	return last, nil
}

// Close releases all cached file handles.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for _, fh := range f.fhCache {
		if err := fh.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.fhCache = make(map[string]*os.File)
	return firstErr
}

var _ epack.Sink = (*File)(nil)
