package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/nxadm/tail"
	log "github.com/sirupsen/logrus"
)

// A LineSource supplies the free-text body of each record
type LineSource interface {
	Line() string
}

// FakeLineSource fabricates lines that look vaguely like application logs:
// a date, a hex token, a numeric token, some words and a file path.
type FakeLineSource struct {
	faker *gofakeit.Faker
}

func NewFakeLineSource(faker *gofakeit.Faker) *FakeLineSource {
	return &FakeLineSource{faker: faker}
}

func (s *FakeLineSource) Line() string {
	f := s.faker
	now := time.Now()

	return fmt.Sprintf("[%s] 0x%s %s %s %s/%s %s",
		f.DateRange(now.AddDate(-1, 0, 0), now).Format(time.UnixDate),
		f.Regex("[0-9a-f]{10}"),
		f.Numerify("##########"),
		s.words(5, f.LoremIpsumWord),
		s.filePath(),
		s.fileName(),
		s.words(5, f.Word),
	)
}

func (s *FakeLineSource) words(count int, fn func() string) string {
	words := make([]string, 0, count)
	for i := 0; i < count; i++ {
		words = append(words, fn())
	}

	return strings.Join(words, " ")
}

func (s *FakeLineSource) filePath() string {
	depth := s.faker.IntRange(1, 3)

	parts := make([]string, 0, depth)
	for i := 0; i < depth; i++ {
		parts = append(parts, strings.ToLower(s.faker.Noun()))
	}

	return "/" + strings.Join(parts, "/")
}

func (s *FakeLineSource) fileName() string {
	return strings.ToLower(s.faker.Word()) + "." + s.faker.FileExtension()
}

// A FileLineSource follows a file and hands out its lines as record bodies.
// When nothing new has been read it falls back to another LineSource, so
// generation never blocks on the file.
type FileLineSource struct {
	Filename string

	tail     *tail.Tail
	lines    chan string
	fallback LineSource
}

// NewFileLineSource opens a tail on the file. The tail reopens the file if it
// is rotated, and keeps following it until Stop() is called.
func NewFileLineSource(filename string, bufferSize int, fallback LineSource) (*FileLineSource, error) {
	tailed, err := tail.TailFile(filename, tail.Config{
		ReOpen: true, Follow: true, Logger: log.StandardLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tail %s: %w", filename, err)
	}

	log.Infof("Adding tail on %s for log lines", filename)

	s := &FileLineSource{
		Filename: filename,
		tail:     tailed,
		lines:    make(chan string, bufferSize),
		fallback: fallback,
	}

	// Exits when the tail is stopped
	go func() {
		for l := range tailed.Lines {
			if l.Err != nil {
				log.Warnf("Error reading %s: %s", filename, l.Err)
				continue
			}
			if l.Text == "" {
				continue
			}
			s.lines <- l.Text
		}
		log.Infof("Closing tail on %s", filename)
	}()

	return s, nil
}

func (s *FileLineSource) Line() string {
	select {
	case line := <-s.lines:
		return line
	default:
		return s.fallback.Line()
	}
}

func (s *FileLineSource) Stop() {
	err := s.tail.Stop()
	if err != nil {
		log.Errorf("Failed to stop tail on %s: %s", s.Filename, err)
	}

	// Remove any inotify watches
	s.tail.Cleanup()
}
