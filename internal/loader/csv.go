package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVSource reads records of the form "id,tag1,tag2,...". Rows may have any
// number of fields; empty tag fields are ignored.
type CSVSource struct {
	reader     *csv.Reader
	closer     io.Closer
	skipHeader bool
	started    bool
}

func NewCSVSource(r io.Reader, skipHeader bool) *CSVSource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	return &CSVSource{reader: cr, skipHeader: skipHeader}
}

// OpenCSV opens path as a CSVSource. Close releases the file.
func OpenCSV(path string, skipHeader bool) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv %s: %w", path, err)
	}
	src := NewCSVSource(f, skipHeader)
	src.closer = f
	return src, nil
}

func (s *CSVSource) Next(ctx context.Context) (Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}
		fields, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return Record{}, fmt.Errorf("line %d: %v: %w", parseErr.Line, parseErr.Err, ErrMalformedRecord)
			}
			return Record{}, fmt.Errorf("reading csv: %w", err)
		}
		if s.skipHeader && !s.started {
			s.started = true
			continue
		}
		s.started = true

		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if isBlank(fields) {
			continue
		}
		if fields[0] == "" {
			line, _ := s.reader.FieldPos(0)
			return Record{}, fmt.Errorf("line %d: empty entity id: %w", line, ErrMalformedRecord)
		}

		rec := Record{EntityID: fields[0], Tags: make([]string, 0, len(fields)-1)}
		for _, tag := range fields[1:] {
			if tag != "" {
				rec.Tags = append(rec.Tags, tag)
			}
		}
		return rec, nil
	}
}

func (s *CSVSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}
