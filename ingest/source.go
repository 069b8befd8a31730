package ingest

import (
	"bufio"
	"io"
)

// Source yields records. Next returns io.EOF after the last record. The
// returned slice may be reused by the next call.
type Source interface {
	Next() ([]byte, error)
}

// maxLineSize bounds a single record from LineSource.
const maxLineSize = 1 << 20

type lineSource struct {
	sc *bufio.Scanner
}

// LineSource returns a Source that yields one record per line of r, without
// the trailing newline. Empty lines are skipped.
func LineSource(r io.Reader) Source {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &lineSource{sc: sc}
}

func (s *lineSource) Next() ([]byte, error) {
	for s.sc.Scan() {
		if line := s.sc.Bytes(); len(line) > 0 {
			return line, nil
		}
	}
	if err := s.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

type sliceSource struct {
	records [][]byte
	i       int
}

// SliceSource returns a Source over records.
func SliceSource(records [][]byte) Source {
	return &sliceSource{records: records}
}

func (s *sliceSource) Next() ([]byte, error) {
	if s.i >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.i]
	s.i++
	return r, nil
}
