package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	director "github.com/relistan/go-director"
	log "github.com/sirupsen/logrus"
)

// A StatsReporter tracks how many records and batches were sent, and how
// long the sends took. It logs progress on an interval and can deliver a
// run summary as an event to an HTTP endpoint.
type StatsReporter struct {
	client    *http.Client
	EventURL  string
	InsertKey string

	records      uint64
	batches      uint64
	failures     uint64
	latencyNanos uint64
	maxNanos     uint64

	ReportLooper director.Looper
	hostname     string
	startedAt    time.Time
}

// A Summary is a snapshot of the counters
type Summary struct {
	Time          string
	Hostname      string
	Records       uint64
	Batches       uint64
	Failures      uint64
	ElapsedMs     int64
	AvgLatencyMs  int64
	MaxLatencyMs  int64
	RecordsPerSec float64
	EventType     string `json:"eventType"`
}

// NewStatsReporter returns a properly configured reporter. An empty eventURL
// means the summary is only logged.
func NewStatsReporter(eventURL, insertKey string, interval time.Duration) *StatsReporter {
	hostname, err := os.Hostname()
	if err != nil {
		log.Warnf("Unable to determine hostname: %s", err)
		hostname = "unknown"
	}

	return &StatsReporter{
		client:       cleanhttp.DefaultClient(),
		EventURL:     eventURL,
		InsertKey:    insertKey,
		ReportLooper: director.NewTimedLooper(director.FOREVER, interval, make(chan error)),
		hostname:     hostname,
		startedAt:    time.Now(),
	}
}

// Record counts one successfully sent batch
func (r *StatsReporter) Record(records int, latency time.Duration) {
	atomic.AddUint64(&r.records, uint64(records))
	atomic.AddUint64(&r.batches, 1)
	atomic.AddUint64(&r.latencyNanos, uint64(latency))

	for {
		current := atomic.LoadUint64(&r.maxNanos)
		if uint64(latency) <= current || atomic.CompareAndSwapUint64(&r.maxNanos, current, uint64(latency)) {
			return
		}
	}
}

// Failure counts one batch that could not be sent
func (r *StatsReporter) Failure() {
	atomic.AddUint64(&r.failures, 1)
}

// Run starts up a background goroutine that logs progress on each tick of
// the ReportLooper
func (r *StatsReporter) Run() {
	go r.ReportLooper.Loop(func() error {
		summary := r.Summary()
		log.Infof("Progress: %d records in %d batches (%.0f records/sec, %d failures)",
			summary.Records, summary.Batches, summary.RecordsPerSec, summary.Failures)

		return nil
	})
}

// Summary returns the current state of the counters
func (r *StatsReporter) Summary() *Summary {
	elapsed := time.Since(r.startedAt)
	records := atomic.LoadUint64(&r.records)
	batches := atomic.LoadUint64(&r.batches)

	summary := &Summary{
		Time:         time.Now().UTC().Format(time.RFC3339),
		Hostname:     r.hostname,
		Records:      records,
		Batches:      batches,
		Failures:     atomic.LoadUint64(&r.failures),
		ElapsedMs:    elapsed.Milliseconds(),
		MaxLatencyMs: time.Duration(atomic.LoadUint64(&r.maxNanos)).Milliseconds(),
		EventType:    "LogLoaderRunSummary",
	}

	if batches > 0 {
		summary.AvgLatencyMs = time.Duration(atomic.LoadUint64(&r.latencyNanos) / batches).Milliseconds()
	}

	if elapsed > 0 {
		summary.RecordsPerSec = float64(records) / elapsed.Seconds()
	}

	return summary
}

// Report logs the final summary and, when an EventURL is set, sends it. A
// failed delivery is logged but does not fail the run.
func (r *StatsReporter) Report() {
	summary := r.Summary()

	log.Infof("Sent %d records in %d batches in %dms (avg %dms, max %dms per batch, %d failures)",
		summary.Records, summary.Batches, summary.ElapsedMs,
		summary.AvgLatencyMs, summary.MaxLatencyMs, summary.Failures,
	)

	if r.EventURL == "" {
		return
	}

	err := r.sendEvent(summary)
	if err != nil {
		log.Errorf("Error reporting run summary: %s", err)
	}
}

// sendEvent serializes JSON and POSTs it to the EventURL
func (r *StatsReporter) sendEvent(summary *Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("unable to encode JSON event: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, r.EventURL, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("unable to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.InsertKey != "" {
		req.Header.Add("X-Insert-Key", r.InsertKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed making HTTP request to %s: %w", r.EventURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bad response from %s: %s", r.EventURL, string(body))
	}

	return nil
}
