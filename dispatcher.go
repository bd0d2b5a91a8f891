package main

import (
	"fmt"
	"time"

	"github.com/Shimmur/logloader/reporter"
	director "github.com/relistan/go-director"
	log "github.com/sirupsen/logrus"
)

// A Batch is the half-open range [Start, End) of record positions sent in
// one request.
type Batch struct {
	Index int
	Start int
	End   int
}

func (b Batch) Size() int {
	return b.End - b.Start
}

// Batches partitions total records into consecutive batches of stride
// records. The final batch holds whatever is left over.
func Batches(total, stride int) ([]Batch, error) {
	if stride < 1 {
		return nil, fmt.Errorf("invalid stride %d: must be at least 1", stride)
	}

	if total < 0 {
		return nil, fmt.Errorf("invalid total %d: must not be negative", total)
	}

	batches := make([]Batch, 0, (total+stride-1)/stride)
	for start := 0; start < total; start += stride {
		end := start + stride
		if end > total {
			end = total
		}

		batches = append(batches, Batch{Index: len(batches), Start: start, End: end})
	}

	return batches, nil
}

// A Dispatcher generates and sends all the batches for a run, one at a time.
// The first failed send stops the run.
type Dispatcher struct {
	Total  int
	Stride int

	generator *Generator
	sender    Sender
	stats     *reporter.StatsReporter
}

func NewDispatcher(total, stride int, generator *Generator, sender Sender, stats *reporter.StatsReporter) *Dispatcher {
	return &Dispatcher{
		Total:     total,
		Stride:    stride,
		generator: generator,
		sender:    sender,
		stats:     stats,
	}
}

// Run blocks until every batch is sent, or returns the error from the first
// batch that failed.
func (d *Dispatcher) Run() error {
	batches, err := Batches(d.Total, d.Stride)
	if err != nil {
		return err
	}

	if len(batches) == 0 {
		log.Warn("No records to send")
		return nil
	}

	looper := director.NewFreeLooper(len(batches), make(chan error))

	next := 0
	go looper.Loop(func() error {
		batch := batches[next]
		next++

		return d.send(batch)
	})

	return looper.Wait()
}

func (d *Dispatcher) send(batch Batch) error {
	log.Infof("i = %d", batch.Start)

	records := d.generator.Batch(batch.Size())

	start := time.Now()
	err := d.sender.Send(records)
	elapsed := time.Since(start)

	if err != nil {
		d.stats.Failure()
		return fmt.Errorf("batch %d (records %d-%d) failed: %w", batch.Index, batch.Start, batch.End-1, err)
	}

	d.stats.Record(len(records), elapsed)
	log.Infof("batch %d: %d records time : %d", batch.Index, len(records), elapsed.Milliseconds())

	return nil
}
