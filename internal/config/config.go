package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string `yaml:"env" env:"ENV" env-default:"local"`
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-required:"true"`
	RedisAddr   string `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	HTTPServer  `yaml:"http_server"`
	Notify      Notify  `yaml:"notify"`
	Booking     Booking `yaml:"booking"`
	Ledger      Ledger  `yaml:"ledger"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env-default:"localhost:8080"`
	Timeout         time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
}

type Notify struct {
	AMQPURL  string `yaml:"amqp_url" env:"AMQP_URL" env-default:""`
	Exchange string `yaml:"exchange" env-default:"tutordesk.notifications"`
}

type Booking struct {
	ClaimTTL     time.Duration `yaml:"claim_ttl" env-default:"1h"`
	DefaultWeeks int           `yaml:"default_weeks" env-default:"4"`
	DefaultRate  float64       `yaml:"default_rate" env-default:"25"`
	RateCurrency string        `yaml:"rate_currency" env-default:"USD"`
}

type Ledger struct {
	DefaultPaymentInterval float64 `yaml:"default_payment_interval" env-default:"10"`
}

func MustLoad() *Config {
	var cfg Config

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("Config file does not exist: %s", configPath)
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	return &cfg
}
