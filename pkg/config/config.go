// Package config loads entityscan settings from defaults, an optional YAML
// file, a .env file and ENTITYSCAN_* environment variables, in increasing
// order of precedence. Command-line flags bound to the same viper instance
// win over all of them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/japaniel/entityscan/pkg/aggregate"
	"github.com/japaniel/entityscan/pkg/analyze"
	"github.com/japaniel/entityscan/pkg/geonames"
	"github.com/japaniel/entityscan/pkg/juditha"
	"github.com/japaniel/entityscan/pkg/notify"
	"github.com/japaniel/entityscan/pkg/resolve"
)

// EnvPrefix prefixes every environment variable, e.g. ENTITYSCAN_JUDITHA_URL.
const EnvPrefix = "ENTITYSCAN"

// DefaultConfigFile is read from the working directory when no file is given.
const DefaultConfigFile = "entityscan.yaml"

type Settings struct {
	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Log struct {
		File       string `mapstructure:"file"`
		Level      string `mapstructure:"level"`
		Production bool   `mapstructure:"production"`
	} `mapstructure:"log"`

	NER struct {
		Engine     string  `mapstructure:"engine"`
		Confidence float64 `mapstructure:"confidence"`
	} `mapstructure:"ner"`

	Aggregate struct {
		UseConfidence bool    `mapstructure:"use_confidence"`
		Threshold     float64 `mapstructure:"threshold"`
		MaxResults    int     `mapstructure:"max_results"`
		TrashFilter   bool    `mapstructure:"trash_filter"`
	} `mapstructure:"aggregate"`

	Normalize struct {
		PhoneRegion string `mapstructure:"phone_region"`
	} `mapstructure:"normalize"`

	Resolve struct {
		Classifier            bool          `mapstructure:"classifier"`
		Validator             bool          `mapstructure:"validator"`
		Geonames              bool          `mapstructure:"geonames"`
		Lookup                bool          `mapstructure:"lookup"`
		ClassifierThreshold   float64       `mapstructure:"classifier_threshold"`
		ClassifierRejectOther bool          `mapstructure:"classifier_reject_other"`
		LookupThreshold       float64       `mapstructure:"lookup_threshold"`
		GeonamesStrict        bool          `mapstructure:"geonames_strict"`
		Strict                bool          `mapstructure:"strict"`
		StageTimeout          time.Duration `mapstructure:"stage_timeout"`
		Workers               int           `mapstructure:"workers"`
	} `mapstructure:"resolve"`

	Juditha struct {
		URL      string        `mapstructure:"url"`
		Timeout  time.Duration `mapstructure:"timeout"`
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"juditha"`

	Geonames struct {
		Path          string  `mapstructure:"path"`
		URL           string  `mapstructure:"url"`
		MinSimilarity float64 `mapstructure:"min_similarity"`
		MinPopulation int64   `mapstructure:"min_population"`
	} `mapstructure:"geonames"`

	Rigour struct {
		NamesPath string `mapstructure:"names_path"`
	} `mapstructure:"rigour"`

	Annotate bool `mapstructure:"annotate"`
	Trace    bool `mapstructure:"trace"`

	Ingest struct {
		Workers       int           `mapstructure:"workers"`
		BatchSize     int           `mapstructure:"batch_size"`
		FlushInterval time.Duration `mapstructure:"flush_interval"`
	} `mapstructure:"ingest"`

	NATS struct {
		URL     string `mapstructure:"url"`
		Subject string `mapstructure:"subject"`
	} `mapstructure:"nats"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
}

// New returns a viper instance with every default set and the environment
// bound. Callers bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	rc := resolve.DefaultConfig()
	jc := juditha.DefaultConfig()

	v.SetDefault("db.path", "entityscan.db")
	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.production", false)

	v.SetDefault("ner.engine", analyze.EngineAll)
	v.SetDefault("ner.confidence", 0.8)

	v.SetDefault("aggregate.use_confidence", false)
	v.SetDefault("aggregate.threshold", 0.5)
	v.SetDefault("aggregate.max_results", aggregate.DefaultMaxResults)
	v.SetDefault("aggregate.trash_filter", true)

	v.SetDefault("normalize.phone_region", "")

	v.SetDefault("resolve.classifier", rc.Classifier)
	v.SetDefault("resolve.validator", rc.Validator)
	v.SetDefault("resolve.geonames", rc.Geonames)
	v.SetDefault("resolve.lookup", rc.Lookup)
	v.SetDefault("resolve.classifier_threshold", rc.ClassifierThreshold)
	v.SetDefault("resolve.classifier_reject_other", rc.ClassifierRejectOther)
	v.SetDefault("resolve.lookup_threshold", rc.LookupThreshold)
	v.SetDefault("resolve.geonames_strict", rc.GeonamesStrict)
	v.SetDefault("resolve.strict", rc.Strict)
	v.SetDefault("resolve.stage_timeout", rc.StageTimeout)
	v.SetDefault("resolve.workers", 4)

	v.SetDefault("juditha.url", "")
	v.SetDefault("juditha.timeout", jc.Timeout)
	v.SetDefault("juditha.cache_ttl", jc.CacheTTL)

	v.SetDefault("geonames.path", "cities15000.txt")
	v.SetDefault("geonames.url", geonames.DefaultDatasetURL)
	v.SetDefault("geonames.min_similarity", 0.9)
	v.SetDefault("geonames.min_population", 0)

	v.SetDefault("rigour.names_path", "")
	v.SetDefault("annotate", false)
	v.SetDefault("trace", false)

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.batch_size", 50)
	v.SetDefault("ingest.flush_interval", 100*time.Millisecond)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", notify.DefaultSubject)
	v.SetDefault("metrics.addr", "")
}

// Load reads .env, the config file and the environment into Settings and
// validates them. path may be empty; DefaultConfigFile is then used if it
// exists.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate reports every invalid setting at once.
func (s *Settings) Validate() error {
	var errs []error
	unit := func(key string, f float64) {
		if f < 0 || f > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", key, f))
		}
	}
	positive := func(key string, n int) {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, n))
		}
	}

	unit("ner.confidence", s.NER.Confidence)
	unit("aggregate.threshold", s.Aggregate.Threshold)
	unit("resolve.classifier_threshold", s.Resolve.ClassifierThreshold)
	unit("resolve.lookup_threshold", s.Resolve.LookupThreshold)
	unit("geonames.min_similarity", s.Geonames.MinSimilarity)
	positive("aggregate.max_results", s.Aggregate.MaxResults)
	positive("resolve.workers", s.Resolve.Workers)
	positive("ingest.workers", s.Ingest.Workers)
	positive("ingest.batch_size", s.Ingest.BatchSize)

	switch s.NER.Engine {
	case analyze.EngineAll, analyze.EngineKagome, analyze.EngineHeuristic, analyze.EngineNone:
	default:
		errs = append(errs, fmt.Errorf("ner.engine must be one of all, kagome, heuristic, none; got %q", s.NER.Engine))
	}
	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", s.Log.Level))
	}
	if s.Resolve.StageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("resolve.stage_timeout must be positive"))
	}
	if s.UsesJuditha() && s.Juditha.URL == "" {
		errs = append(errs, fmt.Errorf("juditha.url is required when a juditha stage is enabled"))
	}
	if s.Resolve.Geonames && s.Geonames.Path == "" {
		errs = append(errs, fmt.Errorf("geonames.path is required when resolve.geonames is enabled"))
	}
	return errors.Join(errs...)
}

// UsesJuditha reports whether any enabled stage talks to the juditha service.
func (s *Settings) UsesJuditha() bool {
	return s.Resolve.Classifier || s.Resolve.Validator || s.Resolve.Lookup
}

// ResolveConfig maps the resolve.* keys onto a pipeline configuration.
func (s *Settings) ResolveConfig() resolve.Config {
	return resolve.Config{
		Classifier:            s.Resolve.Classifier,
		Validator:             s.Resolve.Validator,
		Geonames:              s.Resolve.Geonames,
		Lookup:                s.Resolve.Lookup,
		ClassifierThreshold:   s.Resolve.ClassifierThreshold,
		ClassifierRejectOther: s.Resolve.ClassifierRejectOther,
		LookupThreshold:       s.Resolve.LookupThreshold,
		GeonamesStrict:        s.Resolve.GeonamesStrict,
		Strict:                s.Resolve.Strict,
		StageTimeout:          s.Resolve.StageTimeout,
	}
}

// AggregateOptions maps the aggregate.* keys. The dictionary is filled in
// by the analyzer.
func (s *Settings) AggregateOptions() aggregate.Options {
	opts := aggregate.Options{
		UseConfidence: s.Aggregate.UseConfidence,
		Threshold:     s.Aggregate.Threshold,
		MaxResults:    s.Aggregate.MaxResults,
		PhoneRegion:   s.Normalize.PhoneRegion,
	}
	if s.Aggregate.TrashFilter {
		opts.Scorer = aggregate.NewTrashScorer()
	}
	return opts
}

func (s *Settings) JudithaConfig() juditha.Config {
	return juditha.Config{
		BaseURL:  s.Juditha.URL,
		Timeout:  s.Juditha.Timeout,
		CacheTTL: s.Juditha.CacheTTL,
	}
}
