// Package facts delivers mined annotations to their consumers: files in
// JSON lines or msgpack, or an in-memory collector.
package facts

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-commit-miner/pkg/annotate"
)

// Sink receives every fact the miner derives.
type Sink interface {
	RegisterFact(a annotate.Annotation) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(a annotate.Annotation) error

// RegisterFact calls f.
func (f SinkFunc) RegisterFact(a annotate.Annotation) error { return f(a) }

// Format selects the encoding of a Writer.
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatMsgpack Format = "msgpack"
)

// ErrUnknownFormat is returned for formats other than jsonl and msgpack.
var ErrUnknownFormat = errors.New("unknown fact format")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSONL, FormatMsgpack:
		return Format(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Record is an annotation attributed to the file and commit it was mined
// from.
type Record struct {
	Commit              string `json:"commit,omitempty" msgpack:"commit,omitempty"`
	File                string `json:"file" msgpack:"file"`
	annotate.Annotation `msgpack:",inline"`
}

type encoder interface {
	Encode(v any) error
}

// Writer encodes records to a stream. It is safe for concurrent use;
// records are written whole and in the order Write is called.
type Writer struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	enc    encoder
	closer io.Closer
	count  int
	err    error
}

// NewWriter returns a writer encoding to w.
func NewWriter(w io.Writer, format Format) (*Writer, error) {
	buf := bufio.NewWriter(w)
	out := &Writer{buf: buf}
	switch format {
	case FormatJSONL:
		out.enc = json.NewEncoder(buf)
	case FormatMsgpack:
		out.enc = msgpack.NewEncoder(buf)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return out, nil
}

// Create opens path for writing and returns a writer on it. The path "-"
// writes to standard output.
func Create(path string, format Format) (*Writer, error) {
	if path == "-" || path == "" {
		return NewWriter(os.Stdout, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create fact file: %w", err)
	}
	w, err := NewWriter(f, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Write encodes r. After the first failure every call returns that error.
func (w *Writer) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if err := w.enc.Encode(&r); err != nil {
		w.err = fmt.Errorf("encode fact: %w", err)
		return w.err
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// For returns a sink attributing its facts to file and commit.
func (w *Writer) For(file, commit string) Sink {
	return SinkFunc(func(a annotate.Annotation) error {
		return w.Write(Record{Commit: commit, File: file, Annotation: a})
	})
}

// Close flushes buffered records and closes the underlying file, if the
// writer opened one.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.buf.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
		w.closer = nil
	}
	if err != nil {
		return fmt.Errorf("close fact file: %w", err)
	}
	return nil
}

// ReadAll decodes every record of a stream written by a Writer.
func ReadAll(r io.Reader, format Format) ([]Record, error) {
	var dec interface{ Decode(v any) error }
	switch format {
	case FormatJSONL:
		dec = json.NewDecoder(r)
	case FormatMsgpack:
		dec = msgpack.NewDecoder(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	var out []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("decode fact %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
}

// Collector keeps facts in memory.
type Collector struct {
	mu  sync.Mutex
	set *annotate.Set
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{set: annotate.NewSet()}
}

// RegisterFact adds a to the collected set.
func (c *Collector) RegisterFact(a annotate.Annotation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set.Add(a)
	return nil
}

// Facts returns the collected facts in set order.
func (c *Collector) Facts() []annotate.Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set.Slice()
}

// Len returns the number of distinct facts collected.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set.Len()
}

// Tee returns a sink forwarding every fact to each of sinks, stopping at
// the first error.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(a annotate.Annotation) error {
		for _, s := range sinks {
			if err := s.RegisterFact(a); err != nil {
				return err
			}
		}
		return nil
	})
}

// Emit registers the facts of set with s in set order.
func Emit(s Sink, set *annotate.Set) error {
	for _, a := range set.Slice() {
		if err := s.RegisterFact(a); err != nil {
			return err
		}
	}
	return nil
}
