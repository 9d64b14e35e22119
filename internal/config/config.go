package config

import (
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env  string `env:"ENV" env-default:"local"`
	Port string `env:"PORT" env-default:"8080"`

	DatabaseURL string `env:"DATABASE_URL"`

	Chatwoot struct {
		BaseURL   string `env:"CHATWOOT_API_URL" env-default:"https://app.chatwoot.com"`
		AccountID int64  `env:"CHATWOOT_ACCOUNT_ID" env-default:"1"`
		APIToken  string `env:"CHATWOOT_API_TOKEN"`
	}

	AI struct {
		Provider    string `env:"AI_PROVIDER" env-default:"dify"`
		DifyAPIURL  string `env:"DIFY_API_URL" env-default:"https://api.dify.ai/v1"`
		DifyAPIKey  string `env:"DIFY_API_KEY"`
		OpenAIKey   string `env:"OPENAI_API_KEY"`
		OpenAIModel string `env:"OPENAI_MODEL"`
	}

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" env-default:"30s"`

	TeamCache struct {
		Enabled bool          `env:"ENABLE_TEAM_CACHE" env-default:"true"`
		TTL     time.Duration `env:"TEAM_CACHE_TTL" env-default:"1h"`
	}

	Tasks struct {
		Workers    int           `env:"TASK_WORKERS" env-default:"4"`
		QueueSize  int           `env:"TASK_QUEUE_SIZE" env-default:"64"`
		Retries    int           `env:"TASK_RETRIES" env-default:"3"`
		Backoff    time.Duration `env:"TASK_RETRY_BACKOFF" env-default:"5s"`
		JobTimeout time.Duration `env:"TASK_JOB_TIMEOUT" env-default:"2m"`
	}

	Messages struct {
		OpenedExternal string `env:"BOT_CONVERSATION_OPENED_MESSAGE_EXTERNAL" env-default:"I apologize, but I'm temporarily unavailable. Please wait, a human operator will continue this conversation shortly."`
		ErrorInternal  string `env:"BOT_ERROR_MESSAGE_INTERNAL" env-default:"[bridge] AI relay failed"`
	}
}

var instance *Config
var once sync.Once

// MustLoad reads configuration from the environment exactly once and
// exits the process when required values are missing or malformed.
func MustLoad() *Config {
	once.Do(func() {
		instance = &Config{}
		if err := cleanenv.ReadEnv(instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			instance = nil
			log.Fatalf("config: %v; %s", err, desc)
		}
		if instance.DatabaseURL == "" {
			log.Fatal("config: DATABASE_URL is not set")
		}
	})
	return instance
}
