package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samjbobb/exportbench/export/record"
	"github.com/sirupsen/logrus"
)

const bufferSize = 64 * 1024

// Writer is an append-only line writer.
type Writer interface {
	WriteLine(line string) error
	// Close flushes buffered lines and releases the file. Calling it more than once is a no-op.
	Close() error
}

// Opener creates the sink for one export. name is the strategy's output file name.
type Opener func(name string) (Writer, error)

// DirOpener returns an Opener that places every output file under dir.
func DirOpener(dir string) Opener {
	return func(name string) (Writer, error) {
		s, err := Open(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// SinkError is returned when the output file cannot be opened, written or closed.
type SinkError struct {
	Op   string
	Path string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// FileSink writes lines to a file through a buffer.
type FileSink struct {
	path   string
	f      *os.File
	w      *bufio.Writer
	closed bool
}

// Open deletes any file at path, creates a new one and writes the header line.
func Open(path string) (*FileSink, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &SinkError{Op: "remove", Path: path, Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, &SinkError{Op: "open", Path: path, Err: err}
	}
	s := &FileSink{
		path: path,
		f:    f,
		w:    bufio.NewWriterSize(f, bufferSize),
	}
	if err := s.WriteLine(record.Header); err != nil {
		_ = s.Close()
		return nil, err
	}
	logrus.WithField("path", path).Debugln("sink opened")
	return s, nil
}

func (s *FileSink) WriteLine(line string) error {
	if s.closed {
		return &SinkError{Op: "write", Path: s.path, Err: os.ErrClosed}
	}
	if _, err := s.w.WriteString(line); err != nil {
		return &SinkError{Op: "write", Path: s.path, Err: err}
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return &SinkError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

func (s *FileSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	if flushErr != nil {
		return &SinkError{Op: "flush", Path: s.path, Err: flushErr}
	}
	if closeErr != nil {
		return &SinkError{Op: "close", Path: s.path, Err: closeErr}
	}
	logrus.WithField("path", s.path).Debugln("sink closed")
	return nil
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string {
	return s.path
}
