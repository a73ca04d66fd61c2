package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	MaxSessions      int `env:"MAX_SESSIONS" envDefault:"1000"`
	SessionQueueSize int `env:"SESSION_QUEUE_SIZE" envDefault:"64"`
	SubscriberBuffer int `env:"SUBSCRIBER_BUFFER" envDefault:"32"`

	IdleTimeoutMins     int `env:"IDLE_TIMEOUT_MINUTES" envDefault:"30"`
	EndedGraceMins      int `env:"ENDED_GRACE_MINUTES" envDefault:"10"`
	JanitorIntervalSecs int `env:"JANITOR_INTERVAL_SECONDS" envDefault:"60"`

	// RandomSeed pins the process random source; 0 seeds from the clock.
	RandomSeed int64 `env:"RANDOM_SEED" envDefault:"0"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
