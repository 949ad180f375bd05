package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		InterestSignals string `mapstructure:"interest_signals"`
	} `mapstructure:"topics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig groups the tunables of the recommendation and influence
// engine. Validate rejects configurations that would break the numeric
// contracts; a bad configuration is fatal at startup.
type EngineConfig struct {
	Scoring      ScoringConfig      `mapstructure:"scoring"`
	Interest     InterestConfig     `mapstructure:"interest"`
	Influence    InfluenceConfig    `mapstructure:"influence"`
	Latent       LatentConfig       `mapstructure:"latent"`
	LongTail     LongTailConfig     `mapstructure:"long_tail"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
}

type PipelineConfig struct {
	// Interval between scheduled batch recomputes. Zero disables the
	// scheduler; recomputes then run only on the admin trigger.
	Interval time.Duration `mapstructure:"interval"`
}

type ScoringConfig struct {
	InterestWeight      float64 `mapstructure:"interest_weight"`
	LocalWeight         float64 `mapstructure:"local_weight"`
	PopularityWeight    float64 `mapstructure:"popularity_weight"`
	RatingWeight        float64 `mapstructure:"rating_weight"`
	AccessibilityWeight float64 `mapstructure:"accessibility_weight"`
	HighlightBonus      float64 `mapstructure:"highlight_bonus"`
}

type InterestConfig struct {
	// DecayHalfLife discounts inferred confidence exponentially with
	// signal age. Zero disables decay.
	DecayHalfLife time.Duration `mapstructure:"decay_half_life"`
}

type InfluenceConfig struct {
	DampingFactor float64 `mapstructure:"damping_factor"`
	Epsilon       float64 `mapstructure:"epsilon"`
	MaxIterations int     `mapstructure:"max_iterations"`
	MinEdgeWeight float64 `mapstructure:"min_edge_weight"`
	// EdgeDecayHalfLife time-decays edge weights. Zero disables decay.
	EdgeDecayHalfLife time.Duration `mapstructure:"edge_decay_half_life"`
}

type LatentConfig struct {
	Factors        int     `mapstructure:"factors"`
	Iterations     int     `mapstructure:"iterations"`
	Regularization float64 `mapstructure:"regularization"`
	Seed           int64   `mapstructure:"seed"`
}

type LongTailConfig struct {
	Percentile float64 `mapstructure:"percentile"`
	RelaxStep  float64 `mapstructure:"relax_step"`
}

type OrchestratorConfig struct {
	SocialWeight   float64       `mapstructure:"social_weight"`
	DiscoveryCount int           `mapstructure:"discovery_count"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	// MaxSnapshotAge marks published snapshots stale. Zero means
	// snapshots never go stale.
	MaxSnapshotAge time.Duration `mapstructure:"max_snapshot_age"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func Load() (*Config, error) {
	viper.SetConfigName("compass")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Engine.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate enforces the engine's startup contracts. The engine refuses to
// initialize with weights that do not sum to 1, a non-positive
// factorization rank, negative regularization, or malformed thresholds.
func (e *EngineConfig) Validate() error {
	s := e.Scoring
	weightSum := s.InterestWeight + s.LocalWeight + s.PopularityWeight +
		s.RatingWeight + s.AccessibilityWeight
	if math.Abs(weightSum-1.0) > 1e-9 {
		return fmt.Errorf("invalid configuration: scoring weights sum to %v, want 1.0", weightSum)
	}
	for name, w := range map[string]float64{
		"interest_weight":      s.InterestWeight,
		"local_weight":         s.LocalWeight,
		"popularity_weight":    s.PopularityWeight,
		"rating_weight":        s.RatingWeight,
		"accessibility_weight": s.AccessibilityWeight,
		"highlight_bonus":      s.HighlightBonus,
	} {
		if w < 0 {
			return fmt.Errorf("invalid configuration: scoring %s is negative", name)
		}
	}

	if d := e.Influence.DampingFactor; d <= 0 || d >= 1 {
		return fmt.Errorf("invalid configuration: damping_factor %v outside (0,1)", d)
	}
	if e.Influence.Epsilon <= 0 {
		return fmt.Errorf("invalid configuration: influence epsilon must be positive")
	}
	if e.Influence.MaxIterations <= 0 {
		return fmt.Errorf("invalid configuration: influence max_iterations must be positive")
	}
	if e.Influence.MinEdgeWeight < 0 {
		return fmt.Errorf("invalid configuration: min_edge_weight is negative")
	}

	if e.Latent.Factors <= 0 {
		return fmt.Errorf("invalid configuration: latent factors rank must be positive, got %d", e.Latent.Factors)
	}
	if e.Latent.Iterations <= 0 {
		return fmt.Errorf("invalid configuration: latent iterations must be positive")
	}
	if e.Latent.Regularization < 0 {
		return fmt.Errorf("invalid configuration: latent regularization %v is negative", e.Latent.Regularization)
	}

	if p := e.LongTail.Percentile; p <= 0 || p > 1 {
		return fmt.Errorf("invalid configuration: long_tail percentile %v outside (0,1]", p)
	}
	if st := e.LongTail.RelaxStep; st <= 0 || st > 1 {
		return fmt.Errorf("invalid configuration: long_tail relax_step %v outside (0,1]", st)
	}

	if w := e.Orchestrator.SocialWeight; w < 0 || w > 1 {
		return fmt.Errorf("invalid configuration: social_weight %v outside [0,1]", w)
	}
	if e.Orchestrator.DiscoveryCount < 0 {
		return fmt.Errorf("invalid configuration: discovery_count is negative")
	}

	return nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")
	viper.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.topics.interest_signals", "interest-signals")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Scoring defaults: the fixed multi-factor contract
	viper.SetDefault("engine.scoring.interest_weight", 0.4)
	viper.SetDefault("engine.scoring.local_weight", 0.3)
	viper.SetDefault("engine.scoring.popularity_weight", 0.15)
	viper.SetDefault("engine.scoring.rating_weight", 0.10)
	viper.SetDefault("engine.scoring.accessibility_weight", 0.05)
	viper.SetDefault("engine.scoring.highlight_bonus", 0.2)

	// Interest aggregation defaults (no recency decay unless configured)
	viper.SetDefault("engine.interest.decay_half_life", "0s")

	// Influence graph defaults
	viper.SetDefault("engine.influence.damping_factor", 0.85)
	viper.SetDefault("engine.influence.epsilon", 1e-6)
	viper.SetDefault("engine.influence.max_iterations", 100)
	viper.SetDefault("engine.influence.min_edge_weight", 1.0)
	viper.SetDefault("engine.influence.edge_decay_half_life", "0s")

	// Latent factor defaults
	viper.SetDefault("engine.latent.factors", 16)
	viper.SetDefault("engine.latent.iterations", 10)
	viper.SetDefault("engine.latent.regularization", 0.05)
	viper.SetDefault("engine.latent.seed", 42)

	// Long tail defaults
	viper.SetDefault("engine.long_tail.percentile", 0.8)
	viper.SetDefault("engine.long_tail.relax_step", 0.1)

	// Orchestrator defaults
	viper.SetDefault("engine.orchestrator.social_weight", 0.1)
	viper.SetDefault("engine.orchestrator.discovery_count", 3)
	viper.SetDefault("engine.orchestrator.cache_ttl", "15m")
	viper.SetDefault("engine.orchestrator.max_snapshot_age", "24h")
	viper.SetDefault("engine.orchestrator.request_timeout", "2s")
	viper.SetDefault("engine.pipeline.interval", "6h")
}

// DefaultEngineConfig returns the engine defaults without touching viper
// state. Used by tests and by components embedded outside the server.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Scoring: ScoringConfig{
			InterestWeight:      0.4,
			LocalWeight:         0.3,
			PopularityWeight:    0.15,
			RatingWeight:        0.10,
			AccessibilityWeight: 0.05,
			HighlightBonus:      0.2,
		},
		Influence: InfluenceConfig{
			DampingFactor: 0.85,
			Epsilon:       1e-6,
			MaxIterations: 100,
			MinEdgeWeight: 1.0,
		},
		Latent: LatentConfig{
			Factors:        16,
			Iterations:     10,
			Regularization: 0.05,
			Seed:           42,
		},
		LongTail: LongTailConfig{
			Percentile: 0.8,
			RelaxStep:  0.1,
		},
		Orchestrator: OrchestratorConfig{
			SocialWeight:   0.1,
			DiscoveryCount: 3,
			CacheTTL:       15 * time.Minute,
			MaxSnapshotAge: 24 * time.Hour,
			RequestTimeout: 2 * time.Second,
		},
		Pipeline: PipelineConfig{
			Interval: 6 * time.Hour,
		},
	}
}
