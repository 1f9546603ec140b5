// Package trace implements the broker's append-only publish trace sink:
// open the file, register a flush-and-close callback so every exit path
// releases it, buffer writes, flush on close.
package trace

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/tebeka/atexit"
)

// Sink is the trace sink the dispatcher writes forwarded PUBLISH records
// to. A no-op implementation is used when tracing is disabled, so the
// dispatcher never branches on whether tracing is on.
type Sink interface {
	Write(timeGranted time.Duration, topic string, value []byte)
	Close() error
}

// FileSink writes "#nanoseconds\ttopic\tvalue" records to a plain text file.
type FileSink struct {
	file *os.File
	w    *bufio.Writer
}

// NewFileSink creates (truncating) the trace file at path, writes its
// header, and registers a cleanup that flushes and closes it on exit.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file %s: %w", path, err)
	}

	s := &FileSink{file: f, w: bufio.NewWriter(f)}
	if _, err := s.w.WriteString("#nanoseconds\ttopic\tvalue\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("write trace header: %w", err)
	}

	atexit.Register(func() {
		_ = s.Close()
	})

	return s, nil
}

// Write appends one tab-separated record.
func (s *FileSink) Write(timeGranted time.Duration, topic string, value []byte) {
	fmt.Fprintf(s.w, "%d\t%s\t%s\n", int64(timeGranted), topic, value)
}

// Close flushes any buffered records and closes the underlying file. Safe
// to call more than once.
func (s *FileSink) Close() error {
	if s.file == nil {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// NoopSink discards every record; it's used when FNCS_TRACE is unset or
// does not start with one of Y, y, T, t.
type NoopSink struct{}

func (NoopSink) Write(time.Duration, string, []byte) {}
func (NoopSink) Close() error                        { return nil }
