package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerAddress = "localhost:8080"
	defaultProbeAddress  = "1.1.1.1:53"
	defaultLogLevel      = "info"
	defaultEnv           = "local"
	defaultConfigDir     = ".shiptrack"
)

type Config struct {
	Env           string `mapstructure:"app_env"`
	ServerAddress string `mapstructure:"server_address"`
	EnableTLS     bool   `mapstructure:"enable_tls"`
	LogLevel      string `mapstructure:"log_level"`
	ConfigDir     string `mapstructure:"config_dir"`
	DataPath      string `mapstructure:"data_path"`

	// CompanyID фильтр арендатора; UserID владелец локальных мутаций
	CompanyID string `mapstructure:"company_id"`
	UserID    string `mapstructure:"user_id"`

	SyncInterval    time.Duration `mapstructure:"sync_interval_seconds"`
	SyncCooldown    time.Duration `mapstructure:"sync_cooldown_seconds"`
	ProbeAddress    string        `mapstructure:"probe_address"`
	ProbeInterval   time.Duration `mapstructure:"probe_interval_seconds"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout_seconds"`
	PageSize        int           `mapstructure:"page_size"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryBase       time.Duration `mapstructure:"retry_base_seconds"`
	RetryMax        time.Duration `mapstructure:"retry_max_seconds"`
	RealtimeEnabled bool          `mapstructure:"realtime_enabled"`
}

// MustLoad загружает конфигурацию клиента
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("Ошибка конфигурации: %v", err))
	}
	return cfg
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = "../.env"
	}
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Printf("Ошибка загрузки .env файла: %v\n", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", defaultEnv)
	v.SetDefault("SERVER_ADDRESS", defaultServerAddress)
	v.SetDefault("ENABLE_TLS", false)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("CONFIG_DIR", defaultConfigDir)
	v.SetDefault("SYNC_INTERVAL_SECONDS", 60)
	v.SetDefault("SYNC_COOLDOWN_SECONDS", 30)
	v.SetDefault("PROBE_ADDRESS", defaultProbeAddress)
	v.SetDefault("PROBE_INTERVAL_SECONDS", 10)
	v.SetDefault("FETCH_TIMEOUT_SECONDS", 20)
	v.SetDefault("PAGE_SIZE", 1000)
	v.SetDefault("MAX_ATTEMPTS", 5)
	v.SetDefault("RETRY_BASE_SECONDS", 5)
	v.SetDefault("RETRY_MAX_SECONDS", 300)
	v.SetDefault("REALTIME_ENABLED", true)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	configDir := v.GetString("CONFIG_DIR")
	if configDir == defaultConfigDir {
		configDir = filepath.Join(homeDir, configDir)
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		fmt.Printf("Ошибка создания директории конфигурации: %v\n", err)
	}

	dataPath := v.GetString("DATA_PATH")
	if dataPath == "" {
		dataPath = filepath.Join(configDir, "cache.db")
	}

	cfg := &Config{
		Env:             v.GetString("APP_ENV"),
		ServerAddress:   v.GetString("SERVER_ADDRESS"),
		EnableTLS:       v.GetBool("ENABLE_TLS"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		ConfigDir:       configDir,
		DataPath:        dataPath,
		CompanyID:       v.GetString("COMPANY_ID"),
		UserID:          v.GetString("USER_ID"),
		SyncInterval:    seconds(v, "SYNC_INTERVAL_SECONDS"),
		SyncCooldown:    seconds(v, "SYNC_COOLDOWN_SECONDS"),
		ProbeAddress:    v.GetString("PROBE_ADDRESS"),
		ProbeInterval:   seconds(v, "PROBE_INTERVAL_SECONDS"),
		FetchTimeout:    seconds(v, "FETCH_TIMEOUT_SECONDS"),
		PageSize:        v.GetInt("PAGE_SIZE"),
		MaxAttempts:     v.GetInt("MAX_ATTEMPTS"),
		RetryBase:       seconds(v, "RETRY_BASE_SECONDS"),
		RetryMax:        seconds(v, "RETRY_MAX_SECONDS"),
		RealtimeEnabled: v.GetBool("REALTIME_ENABLED"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Second
}

func (c *Config) validate() error {
	if c.ServerAddress == "" {
		return errors.New("server_address не может быть пустым")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size должен быть положительным: %d", c.PageSize)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts должен быть положительным: %d", c.MaxAttempts)
	}
	if c.FetchTimeout <= 0 {
		return errors.New("fetch_timeout_seconds должен быть положительным")
	}
	if c.RetryMax < c.RetryBase {
		return errors.New("retry_max_seconds меньше retry_base_seconds")
	}
	return nil
}

// BaseURL адрес бэкенда со схемой
func (c *Config) BaseURL() string {
	if c.EnableTLS {
		return "https://" + c.ServerAddress
	}
	return "http://" + c.ServerAddress
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == ""
}
