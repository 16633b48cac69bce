package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env     string `env:"ENV" envDefault:"development"`
	Server  Server
	User    User
	Databases
	ChatAPI ChatAPI
	Socket  Socket
	Kafka   Kafka
}

type Server struct {
	Port int `env:"SERVER_PORT" envDefault:"8080"`
}

// User identifies the local account the sync layer tracks unread
// counters for.
type User struct {
	ID string `env:"USER_ID" validate:"required"`
}

type Databases struct {
	MongoDB MongoDB
}

type MongoDB struct {
	// URI left empty selects the in-memory store.
	URI      string `env:"DATABASE_MONGODB_URI"`
	Database string `env:"DATABASE_MONGODB_NAME" envDefault:"chat_sync"`
}

type ChatAPI struct {
	BaseURL   string `env:"CHAT_API_BASE_URL" validate:"required,url"`
	APIKey    string `env:"CHAT_API_KEY" validate:"required"`
	ProjectID string `env:"CHAT_API_PROJECT_ID" validate:"required"`
}

type Socket struct {
	URL     string `env:"SOCKET_URL" validate:"required,url"`
	Enabled bool   `env:"SOCKET_ENABLED" envDefault:"true"`
}

type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"chat-events"`
	GroupID string   `env:"KAFKA_GROUP_ID" envDefault:"chat-sync"`
}

func Load() (*Config, error) {
	conf := &Config{}
	if err := env.Parse(conf); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := validator.New().Struct(conf); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return conf, nil
}

func MustLoad() *Config {
	conf, err := Load()
	if err != nil {
		panic(err)
	}
	return conf
}
