// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import (
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort        int      `env:"SERVER_PORT"          envDefault:"8080"  envDocs:"http listen port"`
	CORSAllowedOrigin []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"     envDocs:"comma separated list of origins allowed to call the api"`
	LongPollMaxSecond int      `env:"LONG_POLL_MAX_SECOND" envDefault:"30"    envDocs:"upper bound for the wait query parameter of the snapshot endpoint"`
	LogLevel          string   `env:"LOG_LEVEL"            envDefault:"info"  envDocs:"logrus level name"`
	LogJSON           bool     `env:"LOG_JSON"             envDefault:"true"  envDocs:"emit logs as json"`
	ZipkinEndpoint    string   `env:"ZIPKIN_ENDPOINT"      envDefault:""      envDocs:"zipkin collector url, tracing export disabled when empty"`

	DatabaseDriver     string `env:"DATABASE_DRIVER"      envDefault:"memory" envDocs:"memory, postgres or sqlite"`
	DatabaseURL        string `env:"DATABASE_URL"         envDefault:""       envDocs:"dsn for the selected driver"`
	StoreTimeoutSecond int    `env:"STORE_TIMEOUT_SECOND" envDefault:"5"      envDocs:"timeout for a single repository call"`

	CoalesceWindowMs int `env:"COALESCE_WINDOW_MS" envDefault:"500"  envDocs:"quiet period that closes an operator's coalescing window (0 applies every mutation immediately)"`
	MaxBatchAgeMs    int `env:"MAX_BATCH_AGE_MS"   envDefault:"2000" envDocs:"upper bound for how long a coalescing window may stay open"`
	MaxBatchSize     int `env:"MAX_BATCH_SIZE"     envDefault:"64"   envDocs:"number of mutations that forces a coalescing window to close (0 means unbounded)"`
	HistorySize      int `env:"HISTORY_SIZE"       envDefault:"32"   envDocs:"number of applied batches remembered per match"`

	CompletedRetentionMs int `env:"COMPLETED_RETENTION_MS" envDefault:"600000" envDocs:"how long a completed match stays loaded after its last change (0 keeps it until restart)"`

	HeroCatalogPath          string `env:"HERO_CATALOG_PATH"           envDefault:""    envDocs:"json file with the playable hero roster (built-in roster when empty)"`
	HeroCatalogRefreshSecond int    `env:"HERO_CATALOG_REFRESH_SECOND" envDefault:"300" envDocs:"how often the hero catalog file is re-read (0 disables)"`

	AMQPURL      string `env:"AMQP_URL"      envDefault:""                envDocs:"broker url for snapshot notifications, disabled when empty"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"livescore.match" envDocs:"topic exchange receiving snapshot notifications"`

	ArchiveBucket          string `env:"ARCHIVE_BUCKET"            envDefault:"" envDocs:"bucket receiving final snapshots of completed matches, disabled when empty"`
	ArchiveEndpoint        string `env:"ARCHIVE_ENDPOINT"          envDefault:"" envDocs:"s3 compatible endpoint url (empty uses aws default resolution)"`
	ArchiveRegion          string `env:"ARCHIVE_REGION"            envDefault:"auto"`
	ArchiveAccessKeyID     string `env:"ARCHIVE_ACCESS_KEY_ID"     envDefault:""`
	ArchiveSecretAccessKey string `env:"ARCHIVE_SECRET_ACCESS_KEY" envDefault:""`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c Config) CoalesceWindow() time.Duration {
	return time.Duration(c.CoalesceWindowMs) * time.Millisecond
}

func (c Config) MaxBatchAge() time.Duration {
	return time.Duration(c.MaxBatchAgeMs) * time.Millisecond
}

func (c Config) StoreTimeout() time.Duration {
	if c.StoreTimeoutSecond <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.StoreTimeoutSecond) * time.Second
}

func (c Config) LongPollMax() time.Duration {
	return time.Duration(c.LongPollMaxSecond) * time.Second
}

func (c Config) HeroCatalogRefresh() time.Duration {
	return time.Duration(c.HeroCatalogRefreshSecond) * time.Second
}

func (c Config) CompletedRetention() time.Duration {
	return time.Duration(c.CompletedRetentionMs) * time.Millisecond
}
