package filesystem

import (
	"fmt"
	"os"
)

// stagingFile appends to a .part file. A fresh staging file is only created
// (or truncated) on the first write, so a transfer that receives nothing
// leaves any previous file as it was.
type stagingFile struct {
	path  string
	f     *os.File
	size  int64
	fresh bool
}

func (s *stagingFile) Write(p []byte) (int, error) {
	if s.f == nil {
		if err := s.open(s.fresh); err != nil {
			return 0, err
		}
	}
	n, err := s.f.Write(p)
	s.size += int64(n)
	return n, err
}

// Truncate discards everything staged so far
func (s *stagingFile) Truncate() error {
	if s.f == nil {
		return s.open(true)
	}
	if err := s.f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate staging file: %w", err)
	}
	s.size = 0
	return nil
}

func (s *stagingFile) Size() int64 {
	return s.size
}

// Sync flushes staged bytes. A fresh file that received nothing is created
// empty so zero-length downloads can be promoted.
func (s *stagingFile) Sync() error {
	if s.f == nil {
		if err := s.open(s.fresh); err != nil {
			return err
		}
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync staging file: %w", err)
	}
	return nil
}

func (s *stagingFile) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *stagingFile) open(truncate bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(s.path, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open staging file: %w", err)
	}
	s.f = f
	if truncate {
		s.size = 0
	}
	s.fresh = false
	return nil
}
