package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hugolhafner/go-camus/writer"
)

const (
	SchemaVersion = "v1"
	// EnvPrefix selects the environment overrides, e.g. CAMUS__PULL__MAX_HISTORY=24h
	EnvPrefix = "CAMUS__"
	envDelim  = "__"
)

type KafkaCfg struct {
	Brokers        []string      `koanf:"brokers"`
	ClientID       string        `koanf:"client_id"`
	PollTimeout    time.Duration `koanf:"poll_timeout"`
	FetchMaxWait   time.Duration `koanf:"fetch_max_wait"`
	MaxPollRecords int           `koanf:"max_poll_records"`
}

type PullCfg struct {
	MaxHistory                time.Duration `koanf:"max_history"`   // 0 disables
	MaxTaskTime               time.Duration `koanf:"max_task_time"` // 0 disables
	MaxDecoderDiagnostics     int           `koanf:"max_decoder_diagnostics"`
	SkipDecodeErrors          bool          `koanf:"skip_decode_errors"`
	IgnoreServerServiceTopics []string      `koanf:"ignore_server_service_topics"`
}

type DecoderCfg struct {
	Default         string            `koanf:"default"`
	Topics          map[string]string `koanf:"topics"`
	TimestampField  string            `koanf:"timestamp_field"`
	TimestampFormat string            `koanf:"timestamp_format"` // empty means unix millis
}

type PartitionerCfg struct {
	Default  string            `koanf:"default"`
	Topics   map[string]string `koanf:"topics"`
	Timezone string            `koanf:"timezone"`
}

type WriterCfg struct {
	Format string `koanf:"format"`
	Codec  string `koanf:"codec"` // none|gzip|snappy|zstd
}

type CommitCfg struct {
	MoveData          bool          `koanf:"move_data"`
	AuditCounts       bool          `koanf:"audit_counts"`
	CountsGranularity time.Duration `koanf:"counts_granularity"`
}

type StoreCfg struct {
	URL          string `koanf:"url"` // file:///path, mem:// or gs://bucket/prefix
	ExecutionDir string `koanf:"execution_dir"`
	DestRoot     string `koanf:"dest_root"`
}

type ReplicationCfg struct {
	Enabled    bool          `koanf:"enabled"`
	URL        string        `koanf:"url"`
	Root       string        `koanf:"root"`
	MaxRetries int           `koanf:"max_retries"`
	Backoff    time.Duration `koanf:"backoff"`
}

type LogCfg struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type MetricsCfg struct {
	Addr string `koanf:"addr"` // empty disables the endpoint
}

type Config struct {
	SchemaVersion string         `koanf:"schema_version"`
	Kafka         KafkaCfg       `koanf:"kafka"`
	Pull          PullCfg        `koanf:"pull"`
	Decoder       DecoderCfg     `koanf:"decoder"`
	Partitioner   PartitionerCfg `koanf:"partitioner"`
	Writer        WriterCfg      `koanf:"writer"`
	Commit        CommitCfg      `koanf:"commit"`
	Store         StoreCfg       `koanf:"store"`
	Replication   ReplicationCfg `koanf:"replication"`
	Log           LogCfg         `koanf:"log"`
	Metrics       MetricsCfg     `koanf:"metrics"`
}

// Default is the configuration every loaded file is overlaid onto
func Default() Config {
	return Config{
		SchemaVersion: SchemaVersion,
		Kafka: KafkaCfg{
			Brokers:        []string{"localhost:9092"},
			ClientID:       "go-camus",
			PollTimeout:    30 * time.Second,
			FetchMaxWait:   time.Second,
			MaxPollRecords: 500,
		},
		Pull: PullCfg{
			MaxDecoderDiagnostics: 10,
		},
		Decoder: DecoderCfg{
			Default:        "json",
			TimestampField: "timestamp",
		},
		Partitioner: PartitionerCfg{
			Default:  "hourly",
			Timezone: "UTC",
		},
		Writer: WriterCfg{
			Format: "json",
			Codec:  string(writer.CodecGzip),
		},
		Commit: CommitCfg{
			MoveData:          true,
			CountsGranularity: 10 * time.Minute,
		},
		Replication: ReplicationCfg{
			MaxRetries: 3,
			Backoff:    time.Second,
		},
		Log: LogCfg{
			Level: "info",
			JSON:  true,
		},
	}
}

// Load merges the YAML file at path (if present) with CAMUS__ environment
// overrides onto Default, then validates the result.
func Load(cfgPath string) (Config, error) {
	k := koanf.New(".")
	if cfgPath != "" {
		if err := k.Load(file.Provider(cfgPath), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", cfgPath, err)
		}
	}

	sv := k.String("schema_version")
	if sv != "" && sv != SchemaVersion {
		return Config{}, fmt.Errorf("schema_version %q not supported (want %s)", sv, SchemaVersion)
	}

	if err := k.Load(env.Provider(EnvPrefix, envDelim, envKey), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// Validate reports every invalid setting at once
func (c Config) Validate() error {
	var errs []error
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required"))
	}
	if c.Store.URL == "" {
		errs = append(errs, errors.New("store.url is required"))
	}
	// the touched-paths side file lists directories under dest_root and must hold absolute paths
	for _, d := range []struct{ key, dir string }{
		{"store.execution_dir", c.Store.ExecutionDir},
		{"store.dest_root", c.Store.DestRoot},
	} {
		switch {
		case d.dir == "":
			errs = append(errs, fmt.Errorf("%s is required", d.key))
		case !path.IsAbs(d.dir):
			errs = append(errs, fmt.Errorf("%s must be an absolute path, got %q", d.key, d.dir))
		}
	}
	if c.Pull.MaxHistory < 0 || c.Pull.MaxTaskTime < 0 {
		errs = append(errs, errors.New("pull.max_history and pull.max_task_time must not be negative"))
	}
	if _, err := writer.ParseCodec(c.Writer.Codec); err != nil {
		errs = append(errs, fmt.Errorf("writer.codec: %w", err))
	}
	if _, err := time.LoadLocation(c.Partitioner.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("partitioner.timezone: %w", err))
	}
	if c.Replication.Enabled {
		if c.Replication.URL == "" {
			errs = append(errs, errors.New("replication.url is required when replication is enabled"))
		}
		if c.Replication.MaxRetries < 0 {
			errs = append(errs, errors.New("replication.max_retries must not be negative"))
		}
	}
	return errors.Join(errs...)
}

// Location is the partitioner time zone; Validate guarantees it loads
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Partitioner.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
