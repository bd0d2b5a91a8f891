package main

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

const (
	// TimestampJitter spreads records randomly around the base timestamp
	TimestampJitter = "jitter"
	// TimestampSequence steps backwards from the base timestamp, one interval per record
	TimestampSequence = "sequence"
	// TimestampNow stamps each record with the time it was generated
	TimestampNow = "now"
)

// A LogRecord is a single fabricated log entry. Records are serialized as a
// JSON array, one array per batch.
type LogRecord struct {
	Timestamp           *int64 `json:"_timestamp,omitempty"`
	ID                  string `json:"id"`
	KubernetesNamespace string `json:"kubernetes_namespace"`
	KubernetesPodName   string `json:"kubernetes_pod_name"`
	Log                 string `json:"log"`
}

// Pools are the read-only candidate values that records pick their
// namespace and pod name from.
type Pools struct {
	Namespaces []string
	PodNames   []string
}

// NewPools fabricates a namespace pool and a pod name pool from the faker.
// With a seeded faker the pools are identical from run to run.
func NewPools(faker *gofakeit.Faker, namespaceCount, podCount int) *Pools {
	pools := &Pools{
		Namespaces: make([]string, 0, namespaceCount),
		PodNames:   make([]string, 0, podCount),
	}

	// Branch-like names, e.g. "widget-compress"
	for i := 0; i < namespaceCount; i++ {
		pools.Namespaces = append(pools.Namespaces, fmt.Sprintf("%s-%s", faker.Noun(), faker.Verb()))
	}

	for i := 0; i < podCount; i++ {
		pools.PodNames = append(pools.PodNames, faker.HackerAdjective())
	}

	return pools
}

// GeneratorConfig controls how a Generator stamps records
type GeneratorConfig struct {
	TimestampEnabled bool
	TimestampMode    string
	BaseTimestamp    int64 // microseconds since the epoch
	MaxOffset        time.Duration
	Interval         time.Duration
}

// A Generator produces LogRecords from a set of Pools, a faker for the
// per-record random draws, and a LineSource for the free-text log body.
type Generator struct {
	pools  *Pools
	faker  *gofakeit.Faker
	lines  LineSource
	config GeneratorConfig

	generated int64
	now       func() time.Time
}

// NewGenerator returns a properly configured Generator
func NewGenerator(pools *Pools, faker *gofakeit.Faker, lines LineSource, config GeneratorConfig) *Generator {
	return &Generator{
		pools:  pools,
		faker:  faker,
		lines:  lines,
		config: config,
		now:    time.Now,
	}
}

// Generate returns one new record
func (g *Generator) Generate() *LogRecord {
	record := &LogRecord{
		ID:                  uuid.NewString(),
		KubernetesNamespace: g.pick(g.pools.Namespaces),
		KubernetesPodName:   g.pick(g.pools.PodNames),
		Log:                 g.lines.Line(),
	}

	if g.config.TimestampEnabled {
		ts := g.timestamp()
		record.Timestamp = &ts
	}

	g.generated++

	return record
}

// Batch generates size records
func (g *Generator) Batch(size int) []*LogRecord {
	records := make([]*LogRecord, 0, size)
	for i := 0; i < size; i++ {
		records = append(records, g.Generate())
	}

	return records
}

func (g *Generator) pick(pool []string) string {
	if len(pool) == 0 {
		return ""
	}

	return pool[g.faker.IntRange(0, len(pool)-1)]
}

// timestamp works in whole seconds and converts to microseconds at the end
func (g *Generator) timestamp() int64 {
	switch g.config.TimestampMode {
	case TimestampNow:
		return g.now().UnixMicro()

	case TimestampSequence:
		return g.config.BaseTimestamp - g.generated*g.config.Interval.Microseconds()

	default:
		maxSeconds := int(g.config.MaxOffset / time.Second)
		if maxSeconds < 1 {
			return g.config.BaseTimestamp
		}

		sign := int64(1)
		if g.faker.Bool() {
			sign = -1
		}

		offset := int64(g.faker.IntRange(0, maxSeconds-1))
		return g.config.BaseTimestamp + sign*offset*int64(time.Second/time.Microsecond)
	}
}
