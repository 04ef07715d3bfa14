package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// maxLineBytes bounds a single NDJSON frame. A crowded room with long
// identity strings stays well below this.
const maxLineBytes = 1 << 20

// LineSource delivers detector output one line at a time. Run blocks
// until the source is exhausted, handle returns an error, or ctx is done.
// Each line is a complete frame; handle is never called concurrently.
type LineSource interface {
	Run(ctx context.Context, handle func(line []byte) error) error
	Close() error
}

// ReaderSource reads lines from any reader: a recorded file, stdin, or a
// pipe from the detector process.
type ReaderSource struct {
	r         io.Reader
	closer    io.Closer
	closeOnce sync.Once
	closeErr  error
}

// NewReaderSource wraps r. If r is an io.Closer it is closed by Close.
func NewReaderSource(r io.Reader) *ReaderSource {
	s := &ReaderSource{r: r}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenFile opens path as a ReaderSource; "-" reads stdin.
func OpenFile(path string) (*ReaderSource, error) {
	if path == "-" {
		return NewReaderSource(io.NopCloser(os.Stdin)), nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open detection source: %w", err)
	}
	return NewReaderSource(f), nil
}

// Run implements LineSource.
func (s *ReaderSource) Run(ctx context.Context, handle func(line []byte) error) error {
	return scanLines(ctx, s.r, handle)
}

// Close implements LineSource.
func (s *ReaderSource) Close() error {
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}

// scanLines reads from r in a goroutine so a blocking Read never delays
// cancellation. Lines are handed to handle on the caller's goroutine.
func scanLines(ctx context.Context, r io.Reader, handle func(line []byte) error) error {
	// The scanner goroutine must not outlive this call when handle fails.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineChan := make(chan []byte)
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scan.Scan() {
			// Scanner reuses its buffer; hand over a copy.
			line := append([]byte(nil), scan.Bytes()...)
			select {
			case lineChan <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return fmt.Errorf("read detection line: %w", err)
				default:
					return nil
				}
			}
			if err := handle(line); err != nil {
				return err
			}
		}
	}
}
