package mocks

import (
	"context"
	"sync"
)

// FakeStream is an out.DuplexStream that serves scripted chunks and records
// what was written to it.
type FakeStream struct {
	mu sync.Mutex

	// Chunks are returned one per ReadChunk call. After the last chunk the
	// stream reports EOF, unless Block is set, in which case reads wait for
	// Push or cancellation.
	Chunks [][]byte
	Block  bool

	Written     []byte
	WriteErr    error
	ReadErr     error
	CloseWrites int
	Closes      int

	// OnWrite, when set, is called with every write and may Push output.
	OnWrite func(s *FakeStream, p []byte)

	wake chan struct{}
}

// NewFakeStream returns a stream that yields chunks and then EOF.
func NewFakeStream(chunks ...string) *FakeStream {
	s := &FakeStream{wake: make(chan struct{}, 1)}
	for _, c := range chunks {
		s.Chunks = append(s.Chunks, []byte(c))
	}
	return s
}

// Push appends output chunks and wakes a blocked reader.
func (s *FakeStream) Push(chunks ...string) {
	s.mu.Lock()
	for _, c := range chunks {
		s.Chunks = append(s.Chunks, []byte(c))
	}
	s.mu.Unlock()
	s.signal()
}

// End stops a blocking stream so that it reports EOF once drained.
func (s *FakeStream) End() {
	s.mu.Lock()
	s.Block = false
	s.mu.Unlock()
	s.signal()
}

func (s *FakeStream) signal() {
	if s.wake == nil {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *FakeStream) Write(ctx context.Context, p []byte) error {
	s.mu.Lock()
	if s.WriteErr != nil {
		s.mu.Unlock()
		return s.WriteErr
	}
	s.Written = append(s.Written, p...)
	hook := s.OnWrite
	s.mu.Unlock()

	if hook != nil {
		hook(s, p)
	}
	return ctx.Err()
}

func (s *FakeStream) ReadChunk(ctx context.Context, buf []byte) (int, bool, error) {
	for {
		s.mu.Lock()
		if s.ReadErr != nil {
			s.mu.Unlock()
			return 0, false, s.ReadErr
		}
		if len(s.Chunks) > 0 {
			n := copy(buf, s.Chunks[0])
			if n < len(s.Chunks[0]) {
				s.Chunks[0] = s.Chunks[0][n:]
			} else {
				s.Chunks = s.Chunks[1:]
			}
			s.mu.Unlock()
			return n, false, nil
		}
		block := s.Block
		s.mu.Unlock()

		if !block {
			return 0, true, nil
		}
		select {
		case <-s.wake:
		case <-ctx.Done():
			return 0, false, ctx.Err()
		}
	}
}

func (s *FakeStream) CloseWrite() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseWrites++
	return nil
}

func (s *FakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closes++
	return nil
}

// Output returns everything written so far.
func (s *FakeStream) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.Written)
}
