// Package rawlog persists raw records as newline-delimited JSON, one file per run.
package rawlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/okian/tourney-ingest/internal/domain/model"
)

// Sentinel errors.
var (
	ErrMalformed = errors.New("malformed raw record")
	ErrClosed    = errors.New("raw log closed")
	ErrNoLog     = errors.New("no raw log found")
)

const (
	filePrefix = "raw_events-"
	fileSuffix = ".jsonl"
	maxLine    = 4 << 20
)

// PathFor returns the log path of run inside dir.
func PathFor(dir, runID string) string {
	return filepath.Join(dir, filePrefix+runID+fileSuffix)
}

// Writer appends records to one run's log. Safe for concurrent use.
type Writer struct {
	mu    sync.Mutex
	path  string
	f     *os.File
	buf   *bufio.Writer
	count int
}

// Create opens a new log for runID in dir. It fails if the file exists.
func Create(dir, runID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rawlog: create dir: %w", err)
	}
	path := PathFor(dir, runID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rawlog: open: %w", err)
	}
	return &Writer{path: path, f: f, buf: bufio.NewWriterSize(f, 64<<10)}, nil
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// Count returns the number of records appended so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Append writes one record as a single line.
func (w *Writer) Append(r model.RawEvent) error {
	line, err := Encode(r)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return ErrClosed
	}
	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("rawlog: write: %w", err)
	}
	w.count++
	return nil
}

// Close flushes and syncs the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := errors.Join(w.buf.Flush(), w.f.Sync(), w.f.Close())
	w.f = nil
	if err != nil {
		return fmt.Errorf("rawlog: close: %w", err)
	}
	return nil
}

// Encode renders r as a flat JSON object followed by a newline. Absent fields
// are omitted; present ones are always strings.
func Encode(r model.RawEvent) ([]byte, error) {
	obj := make(map[string]string, len(r.Fields)+3)
	for k, v := range r.Fields {
		obj[k] = v
	}
	obj[model.KeySourceName] = r.SourceName
	obj[model.KeySourceURL] = r.SourceURL
	obj[model.KeySourceHash] = r.SourceHash
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("rawlog: encode: %w", err)
	}
	return append(b, '\n'), nil
}

// Decode parses one line. Numbers and booleans keep their literal text and
// null means absent. A missing source_hash is recomputed.
func Decode(line []byte) (model.RawEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return model.RawEvent{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if obj == nil {
		return model.RawEvent{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	r := model.RawEvent{Fields: make(map[string]string, len(obj))}
	for k, v := range obj {
		var s string
		switch val := v.(type) {
		case nil:
			continue
		case string:
			s = val
		case json.Number:
			s = val.String()
		case bool:
			if val {
				s = "true"
			} else {
				s = "false"
			}
		default:
			return model.RawEvent{}, fmt.Errorf("%w: field %q is not a scalar", ErrMalformed, k)
		}
		switch k {
		case model.KeySourceName:
			r.SourceName = s
		case model.KeySourceURL:
			r.SourceURL = s
		case model.KeySourceHash:
			r.SourceHash = s
		default:
			r.Fields[k] = s
		}
	}
	if r.SourceName == "" {
		return model.RawEvent{}, fmt.Errorf("%w: missing %s", ErrMalformed, model.KeySourceName)
	}
	if r.SourceHash == "" {
		r.SourceHash = model.ComputeHash(r)
	}
	return r, nil
}

// Read streams the records of the log at path. A malformed line yields an
// error wrapping ErrMalformed and reading continues. An open or I/O failure
// is yielded once and ends the sequence.
func Read(path string) iter.Seq2[model.RawEvent, error] {
	return func(yield func(model.RawEvent, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(model.RawEvent{}, fmt.Errorf("rawlog: open: %w", err))
			return
		}
		defer func() { _ = f.Close() }()
		readFrom(f, yield)
	}
}

func readFrom(r io.Reader, yield func(model.RawEvent, error) bool) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLine)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := Decode(line)
		if err != nil {
			err = fmt.Errorf("line %d: %w", n, err)
		}
		if !yield(rec, err) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		yield(model.RawEvent{}, fmt.Errorf("rawlog: read: %w", err))
	}
}

// Latest returns the most recently modified run log in dir.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w in %s", ErrNoLog, dir)
		}
		return "", fmt.Errorf("rawlog: list: %w", err)
	}
	type candidate struct {
		path string
		mod  int64
	}
	var logs []candidate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		logs = append(logs, candidate{path: filepath.Join(dir, name), mod: info.ModTime().UnixNano()})
	}
	if len(logs) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoLog, dir)
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].mod != logs[j].mod {
			return logs[i].mod > logs[j].mod
		}
		return logs[i].path > logs[j].path
	})
	return logs[0].path, nil
}
