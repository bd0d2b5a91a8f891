package main

import (
	"context"
	"fmt"
	"time"

	limiter "github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
	log "github.com/sirupsen/logrus"
)

// A ThrottlingSender is a Sender that wraps another Sender, limiting how many
// batches go out per interval. Unlike a rate limiter in front of a proxy, it
// never drops anything: it waits for the bucket to refill.
type ThrottlingSender struct {
	Throttled uint64

	limitStore limiter.Store
	output     Sender
	limitKey   string
	sleep      func(time.Duration)
}

func NewThrottlingSender(batchLimit int, interval time.Duration, key string, output Sender) (*ThrottlingSender, error) {
	store, err := memorystore.New(&memorystore.Config{
		// Number of batches allowed per interval.
		Tokens: uint64(batchLimit),

		// Interval until tokens reset.
		Interval: interval,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create memory store: %w", err)
	}

	return &ThrottlingSender{
		limitStore: store,
		output:     output,
		limitKey:   key,
		sleep:      time.Sleep,
	}, nil
}

// wait blocks until a token is available for the limit key
func (s *ThrottlingSender) wait() error {
	for {
		limit, remaining, reset, ok, err := s.limitStore.Take(context.Background(), s.limitKey)
		log.Debugf("Checking throttle: %d %d %d %t", limit, remaining, reset, ok)
		if err != nil {
			return fmt.Errorf("unable to fetch throttle for %s: %w", s.limitKey, err)
		}

		if ok {
			return nil
		}

		s.Throttled++
		delay := time.Until(time.Unix(0, int64(reset)))
		if delay > 0 {
			log.Debugf("Throttled, waiting %s", delay)
			s.sleep(delay)
		}
	}
}

// Send is a pass-through to the downstream Sender once the throttle allows it
func (s *ThrottlingSender) Send(records []*LogRecord) error {
	err := s.wait()
	if err != nil {
		return err
	}

	return s.output.Send(records)
}

// Stop cleans up our resources on shutdown
func (s *ThrottlingSender) Stop() {
	_ = s.limitStore.Close(context.Background())
}
