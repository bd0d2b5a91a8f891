package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Nitro/sidecar-executor/loghooks"
	"github.com/Shimmur/logloader/cache"
	"github.com/Shimmur/logloader/reporter"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/kelseyhightower/envconfig"
	"github.com/relistan/rubberneck"
	log "github.com/sirupsen/logrus"
)

const (
	ModeBatch  = "batch"
	ModeLive   = "live"
	ModeExport = "export"

	namespacePool = "namespaces"
	podPool       = "pod_names"
)

type Config struct {
	Mode     string `envconfig:"RUN_MODE" default:"batch"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Total  int `envconfig:"TOTAL" default:"100000"`
	Stride int `envconfig:"STRIDE" default:"5000"`

	Host        string `envconfig:"INGEST_HOST" default:"localhost"`
	Ports       []int  `envconfig:"PORTS" default:"5080"`
	Org         string `envconfig:"ORG" default:"default"`
	Stream      string `envconfig:"STREAM" default:"test"`
	Credential  string `envconfig:"CREDENTIAL" default:"cm9vdEBleGFtcGxlLmNvbTpDb21wbGV4cGFzcyMxMjM="`
	User        string `envconfig:"AUTH_USER"`
	Password    string `envconfig:"AUTH_PASSWORD"`
	Compression string `envconfig:"COMPRESSION" default:"none"`
	HTTPDebug   bool   `envconfig:"HTTP_DEBUG" default:"false"`

	TimestampEnabled bool          `envconfig:"TIMESTAMP_ENABLED" default:"true"`
	TimestampMode    string        `envconfig:"TIMESTAMP_MODE" default:"jitter"`
	BaseTimestamp    int64         `envconfig:"BASE_TIMESTAMP" default:"1744788769499000"`
	MaxOffset        time.Duration `envconfig:"MAX_OFFSET" default:"48h"`
	SequenceInterval time.Duration `envconfig:"SEQUENCE_INTERVAL" default:"10s"`

	PoolSeed       uint64 `envconfig:"POOL_SEED" default:"42"`
	RecordSeed     uint64 `envconfig:"RECORD_SEED" default:"0"`
	NamespaceCount int    `envconfig:"NAMESPACE_COUNT" default:"75"`
	PodCount       int    `envconfig:"POD_COUNT" default:"150"`
	PoolsPath      string `envconfig:"POOLS_PATH"`
	LinesFile      string `envconfig:"LINES_FILE"`

	ThrottleBatches  int           `envconfig:"THROTTLE_BATCHES" default:"0"`
	ThrottleInterval time.Duration `envconfig:"THROTTLE_INTERVAL" default:"1s"`

	LiveInterval  time.Duration `envconfig:"LIVE_INTERVAL" default:"1s"`
	LiveBatchSize int           `envconfig:"LIVE_BATCH_SIZE" default:"2"`

	ExportPath string `envconfig:"EXPORT_PATH" default:"output.json"`

	ReportInterval  time.Duration `envconfig:"REPORT_INTERVAL" default:"10s"`
	ReportURL       string        `envconfig:"REPORT_URL"`
	ReportInsertKey string        `envconfig:"REPORT_INSERT_KEY"`
	SyslogAddress   string        `envconfig:"SYSLOG_ADDRESS"`
}

// configureLogging sets the level and, when configured, mirrors our own log
// output to a UDP syslog listener.
func configureLogging(config *Config) error {
	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", config.LogLevel, err)
	}
	log.SetLevel(level)

	if config.SyslogAddress == "" {
		return nil
	}

	hook, err := loghooks.NewUDPHook(config.SyslogAddress)
	if err != nil {
		return fmt.Errorf("error adding syslog hook for %s: %w", config.SyslogAddress, err)
	}
	log.AddHook(hook)

	return nil
}

// LoadPools returns the pools from the cache file when one is configured and
// holds them. Otherwise they are generated from a faker seeded with the
// PoolSeed, and stored in the cache if there is one.
func LoadPools(config *Config) (*Pools, error) {
	generate := func() *Pools {
		return NewPools(gofakeit.New(config.PoolSeed), config.NamespaceCount, config.PodCount)
	}

	if config.PoolsPath == "" {
		return generate(), nil
	}

	poolCache := cache.NewCache(2, config.PoolsPath)
	err := poolCache.Load()
	if err != nil {
		log.Warnf("No usable pool cache, generating new pools: %s", err)
	}

	pools := &Pools{
		Namespaces: poolCache.Get(namespacePool),
		PodNames:   poolCache.Get(podPool),
	}

	if len(pools.Namespaces) != config.NamespaceCount {
		if len(pools.Namespaces) > 0 {
			log.Warnf("Cached namespace pool has %d entries, want %d: regenerating",
				len(pools.Namespaces), config.NamespaceCount)
		}
		poolCache.Del(namespacePool)
	}

	if len(pools.PodNames) != config.PodCount {
		if len(pools.PodNames) > 0 {
			log.Warnf("Cached pod name pool has %d entries, want %d: regenerating",
				len(pools.PodNames), config.PodCount)
		}
		poolCache.Del(podPool)
	}

	if poolCache.Get(namespacePool) != nil && poolCache.Get(podPool) != nil {
		log.Infof("Loaded %d namespaces and %d pod names from %s",
			len(pools.Namespaces), len(pools.PodNames), config.PoolsPath)
		return pools, nil
	}

	pools = generate()
	poolCache.Add(namespacePool, pools.Namespaces)
	poolCache.Add(podPool, pools.PodNames)

	err = poolCache.Persist()
	if err != nil {
		return nil, err
	}

	return pools, nil
}

// NewLineSource returns the fake line source, or a file follower wrapping it
// when a LinesFile is configured. The returned func releases the source.
func NewLineSource(config *Config, faker *gofakeit.Faker) (LineSource, func(), error) {
	fake := NewFakeLineSource(faker)
	if config.LinesFile == "" {
		return fake, func() {}, nil
	}

	fileSource, err := NewFileLineSource(config.LinesFile, 1024, fake)
	if err != nil {
		return nil, nil, err
	}

	return fileSource, fileSource.Stop, nil
}

// NewSender builds the HTTP sender, wrapped in a throttle when one is
// configured.
func NewSender(config *Config) (Sender, func(), error) {
	credential := config.Credential
	if config.User != "" {
		credential = BasicCredential(config.User, config.Password)
	}

	httpSender := NewHTTPSender(config.Host, config.Ports, config.Org, config.Stream, credential)

	err := httpSender.SetCompression(config.Compression)
	if err != nil {
		return nil, nil, err
	}

	if config.HTTPDebug {
		httpSender.LogTraffic()
	}

	if config.ThrottleBatches < 1 {
		return httpSender, func() {}, nil
	}

	throttled, err := NewThrottlingSender(
		config.ThrottleBatches, config.ThrottleInterval, config.Stream, httpSender,
	)
	if err != nil {
		return nil, nil, err
	}

	return throttled, throttled.Stop, nil
}

func generatorConfig(config *Config) (GeneratorConfig, error) {
	switch config.TimestampMode {
	case TimestampJitter, TimestampSequence, TimestampNow:
	default:
		return GeneratorConfig{}, fmt.Errorf("unknown timestamp mode '%s'", config.TimestampMode)
	}

	genConfig := GeneratorConfig{
		TimestampEnabled: config.TimestampEnabled,
		TimestampMode:    config.TimestampMode,
		BaseTimestamp:    config.BaseTimestamp,
		MaxOffset:        config.MaxOffset,
		Interval:         config.SequenceInterval,
	}

	// Live data is always fresh
	if config.Mode == ModeLive {
		genConfig.TimestampMode = TimestampNow
	}

	return genConfig, nil
}

func run(config *Config) error {
	genConfig, err := generatorConfig(config)
	if err != nil {
		return err
	}

	pools, err := LoadPools(config)
	if err != nil {
		return err
	}

	faker := gofakeit.New(config.RecordSeed)

	lines, stopLines, err := NewLineSource(config, faker)
	if err != nil {
		return err
	}
	defer stopLines()

	generator := NewGenerator(pools, faker, lines, genConfig)

	stats := reporter.NewStatsReporter(config.ReportURL, config.ReportInsertKey, config.ReportInterval)
	stats.Run()
	defer stats.Report()

	switch config.Mode {
	case ModeExport:
		fileSender, err := NewFileSender(config.ExportPath, config.Total)
		if err != nil {
			return err
		}

		err = NewDispatcher(config.Total, config.Stride, generator, fileSender, stats).Run()
		if err != nil {
			_ = fileSender.Close()
			return err
		}

		return fileSender.Close()

	case ModeLive:
		sender, stopSender, err := NewSender(config)
		if err != nil {
			return err
		}
		defer stopSender()

		ingester := NewLiveIngester(config.LiveBatchSize, config.LiveInterval, generator, sender, stats)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			log.Info("Shutting down live ingestion")
			ingester.Stop()
		}()

		log.Infof("Starting live ingestion: %d records every %s", config.LiveBatchSize, config.LiveInterval)
		return ingester.Run()

	case ModeBatch:
		sender, stopSender, err := NewSender(config)
		if err != nil {
			return err
		}
		defer stopSender()

		return NewDispatcher(config.Total, config.Stride, generator, sender, stats).Run()

	default:
		return fmt.Errorf("unknown mode '%s'", config.Mode)
	}
}

// newConfigPrinter returns a rubberneck printer that masks the secrets
func newConfigPrinter(printf func(format string, v ...interface{})) *rubberneck.Printer {
	return rubberneck.NewPrinterWithKeyMasking(printf, maskSecrets, rubberneck.NoAddLineFeed)
}

func maskSecrets(argument string) *string {
	switch argument {
	case "Password", "Credential", "ReportInsertKey":
		masked := "*****"
		return &masked
	}

	return nil
}

func main() {
	var config Config
	err := envconfig.Process("loader", &config)
	if err != nil {
		log.Fatal(err.Error())
	}
	newConfigPrinter(log.Infof).Print(config)

	err = configureLogging(&config)
	if err != nil {
		log.Fatal(err.Error())
	}

	err = run(&config)
	if err != nil {
		log.Fatal(err.Error())
	}
}
