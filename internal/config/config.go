package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Retention RetentionConfig `mapstructure:"retention"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Log       LogConfig       `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type TrackerConfig struct {
	IoUThreshold  float64       `mapstructure:"iou_threshold"`
	PersonTimeout time.Duration `mapstructure:"person_timeout"`
	// Strategy selects the matching strategy: "iou" or "spatial_hash".
	Strategy string `mapstructure:"strategy"`
}

type SweeperConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	CooldownPeriod time.Duration `mapstructure:"cooldown_period"`
}

// RetentionConfig bounds how long closed events are kept. Days <= 0
// disables the cleanup pass.
type RetentionConfig struct {
	Days     int           `mapstructure:"days"`
	Interval time.Duration `mapstructure:"interval"`
}

type SnapshotConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads config.yaml from the working directory (optional) and
// layers PPE_-prefixed environment variables on top of the defaults,
// e.g. PPE_DATABASE_DSN, PPE_KAFKA_BROKERS.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.dsn", "host=localhost user=ppe password=ppe dbname=ppe port=5432 sslmode=disable")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "ppe.violation.events")
	v.SetDefault("tracker.iou_threshold", 0.3)
	v.SetDefault("tracker.person_timeout", 5*time.Second)
	v.SetDefault("tracker.strategy", "iou")
	v.SetDefault("sweeper.interval", 60*time.Second)
	v.SetDefault("sweeper.cooldown_period", 60*time.Second)
	v.SetDefault("retention.days", 90)
	v.SetDefault("retention.interval", 24*time.Hour)
	v.SetDefault("snapshot.dir", "snapshots")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("PPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
