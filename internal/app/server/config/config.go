package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath  = ".env"
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	memoryScheme = "memory://"
)

type Config struct {
	Env    string
	DB     DB
	Server Server
	Logger Logger
}

type DB struct {
	DatabaseURI string
	MaxConns    int32
}

// InMemory DATABASE_URI=memory:// запускает сервер без PostgreSQL, данные живут до перезапуска
func (d DB) InMemory() bool {
	return strings.HasPrefix(d.DatabaseURI, memoryScheme)
}

type Server struct {
	RunAddress   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxPageSize верхняя граница диапазона from..to в одном запросе списка
	MaxPageSize int
}

type Logger struct {
	LogLevel string
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("Ошибка конфигурации сервера: %v", err))
	}
	return cfg
}

func Load() (*Config, error) {
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", EnvLocal)
	v.SetDefault("RUN_ADDRESS", ":8080")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("READ_TIMEOUT_SECONDS", 15)
	v.SetDefault("WRITE_TIMEOUT_SECONDS", 30)
	v.SetDefault("MAX_PAGE_SIZE", 1000)

	cfg := &Config{
		Env: v.GetString("APP_ENV"),
		DB: DB{
			DatabaseURI: v.GetString("DATABASE_URI"),
			MaxConns:    v.GetInt32("DB_MAX_CONNS"),
		},
		Server: Server{
			RunAddress:   v.GetString("RUN_ADDRESS"),
			ReadTimeout:  time.Duration(v.GetInt("READ_TIMEOUT_SECONDS")) * time.Second,
			WriteTimeout: time.Duration(v.GetInt("WRITE_TIMEOUT_SECONDS")) * time.Second,
			MaxPageSize:  v.GetInt("MAX_PAGE_SIZE"),
		},
		Logger: Logger{LogLevel: v.GetString("LOG_LEVEL")},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DB.DatabaseURI == "" {
		return errors.New("DATABASE_URI не задан")
	}
	if c.Server.RunAddress == "" {
		return errors.New("RUN_ADDRESS не задан")
	}
	if c.Server.MaxPageSize <= 0 {
		return fmt.Errorf("MAX_PAGE_SIZE должен быть положительным: %d", c.Server.MaxPageSize)
	}
	if c.DB.MaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS должен быть положительным: %d", c.DB.MaxConns)
	}
	return nil
}
