package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// A FileSender writes every batch it is handed into a single JSON array on
// disk instead of sending it anywhere. The array is only valid once Close()
// has been called.
type FileSender struct {
	Path  string
	Total int

	file    *os.File
	writer  *bufio.Writer
	written int
}

// NewFileSender creates (or truncates) the output file and opens the array
func NewFileSender(path string, total int) (*FileSender, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	s := &FileSender{
		Path:   path,
		Total:  total,
		file:   file,
		writer: bufio.NewWriter(file),
	}

	if _, err := s.writer.WriteString("["); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to write to %s: %w", path, err)
	}

	return s, nil
}

func (s *FileSender) Send(records []*LogRecord) error {
	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("unable to encode record %s: %w", record.ID, err)
		}

		if s.written > 0 {
			if err := s.writer.WriteByte(','); err != nil {
				return fmt.Errorf("failed to write to %s: %w", s.Path, err)
			}
		}

		if _, err := s.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write to %s: %w", s.Path, err)
		}
		s.written++
	}

	// Flush every batch so memory doesn't build up
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", s.Path, err)
	}

	if s.Total > 0 {
		log.Infof("Progress: %.1f%%", float64(s.written)/float64(s.Total)*100)
	}

	return nil
}

// Close terminates the array and closes the file
func (s *FileSender) Close() error {
	defer s.file.Close()

	if _, err := s.writer.WriteString("]"); err != nil {
		return fmt.Errorf("failed to write to %s: %w", s.Path, err)
	}

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", s.Path, err)
	}

	log.Infof("Data generation complete! %d records written to '%s'", s.written, s.Path)

	return nil
}
