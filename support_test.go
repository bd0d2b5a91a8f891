package main

import (
	"bytes"
	"errors"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	log "github.com/sirupsen/logrus"
)

// LogCapture logs for async testing where we can't get a nice handle on thigns
func LogCapture(fn func()) string {
	capture := &bytes.Buffer{}
	log.SetOutput(capture)
	fn()
	log.SetOutput(os.Stdout)

	return capture.String()
}

// mockSender implements the Sender interface, for testing
type mockSender struct {
	Batches [][]*LogRecord

	// Fail every send from this (1-based) call onwards, when non-zero
	FailFrom int
}

func (s *mockSender) Send(records []*LogRecord) error {
	if s.FailFrom > 0 && len(s.Batches)+1 >= s.FailFrom {
		return errors.New("intentional test error")
	}

	s.Batches = append(s.Batches, records)
	return nil
}

func (s *mockSender) Records() int {
	var count int
	for _, batch := range s.Batches {
		count += len(batch)
	}
	return count
}

// stubLineSource always returns the same line
type stubLineSource struct {
	Text string
}

func (s *stubLineSource) Line() string { return s.Text }

const testBaseTimestamp = int64(1744788769499000)

func newTestPools() *Pools {
	return NewPools(gofakeit.New(42), 75, 150)
}

func newTestGenerator(config GeneratorConfig) *Generator {
	faker := gofakeit.New(7)
	return NewGenerator(newTestPools(), faker, NewFakeLineSource(faker), config)
}

func defaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		TimestampEnabled: true,
		TimestampMode:    TimestampJitter,
		BaseTimestamp:    testBaseTimestamp,
		MaxOffset:        48 * time.Hour,
		Interval:         10 * time.Second,
	}
}
