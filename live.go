package main

import (
	"strings"
	"time"

	"github.com/Shimmur/logloader/reporter"
	director "github.com/relistan/go-director"
	log "github.com/sirupsen/logrus"
)

// A LiveIngester sends a small batch on every tick, forever, to simulate a
// steady trickle of fresh logs. Failed sends are logged and the loop keeps
// going.
type LiveIngester struct {
	BatchSize int
	Looper    director.Looper

	generator *Generator
	sender    Sender
	stats     *reporter.StatsReporter
}

func NewLiveIngester(batchSize int, interval time.Duration, generator *Generator,
	sender Sender, stats *reporter.StatsReporter) *LiveIngester {

	return &LiveIngester{
		BatchSize: batchSize,
		Looper:    director.NewImmediateTimedLooper(director.FOREVER, interval, make(chan error)),
		generator: generator,
		sender:    sender,
		stats:     stats,
	}
}

// Run blocks until the Looper is stopped
func (l *LiveIngester) Run() error {
	go l.Looper.Loop(func() error {
		records := l.generator.Batch(l.BatchSize)

		start := time.Now()
		err := l.sender.Send(records)
		if err != nil {
			// We _don't_ want to exit on error
			log.Errorf("Failed to ingest %d records: %s", len(records), err)
			l.stats.Failure()
			return nil
		}

		l.stats.Record(len(records), time.Since(start))
		log.Infof("Ingested %d records (IDs: %s)", len(records), shortIDs(records))

		return nil
	})

	return l.Looper.Wait()
}

// Stop interrupts the loop
func (l *LiveIngester) Stop() {
	l.Looper.Quit()
}

func shortIDs(records []*LogRecord) string {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		id := record.ID
		if len(id) > 8 {
			id = id[:8]
		}
		ids = append(ids, id)
	}

	return strings.Join(ids, ", ")
}
