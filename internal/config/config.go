package config

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
)

type Config struct {
	ServerBaseURL  string        `hcl:"server_base_url" env:"SERVER_BASE_URL" default:"http://localhost:8080"`
	DatabasePath   string        `hcl:"database_path" env:"DATABASE_PATH" default:"./feedsync.db"`
	SyncInterval   time.Duration `hcl:"sync_interval" env:"SYNC_INTERVAL" default:"5m"`
	IdleThreshold  time.Duration `hcl:"idle_threshold" env:"IDLE_THRESHOLD" default:"60s"`
	GraceWindow    time.Duration `hcl:"grace_window" env:"GRACE_WINDOW" default:"720h"`
	BatchSize      int           `hcl:"batch_size" env:"BATCH_SIZE" default:"50"`
	MaxRetries     int           `hcl:"max_retries" env:"MAX_RETRIES" default:"3"`
	InitialBackoff time.Duration `hcl:"initial_backoff" env:"INITIAL_BACKOFF" default:"500ms"`
	RequestTimeout time.Duration `hcl:"request_timeout" env:"REQUEST_TIMEOUT" default:"30s"`
	FeedsFile      string        `hcl:"feeds_file" env:"FEEDS_FILE" default:"feeds.txt"`
	KeywordsFile   string        `hcl:"keywords_file" env:"KEYWORDS_FILE" default:"filter_keywords.txt"`
}

var (
	cfg  Config
	once sync.Once
)

func Get() Config {
	once.Do(func() {
		loader := aconfig.LoaderFor(&cfg, aconfig.Config{
			EnvPrefix: "FSYNC",
			Files:     []string{"./config.hcl", "./config.local.hcl", "$HOME/.config/feed-sync/config.hcl"},
			FileDecoders: map[string]aconfig.FileDecoder{
				".hcl": aconfighcl.New(),
			},
		})

		if err := loader.Load(); err != nil {
			slog.Error("failed to load config", "err", err)
		}
	})

	return cfg
}
