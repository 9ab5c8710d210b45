package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Logger         `mapstructure:"logger"`
	DB        Database       `mapstructure:"database"`
	Redis     Redis          `mapstructure:"redis"`
	API       API            `mapstructure:"api"`
	Binance   Binance        `mapstructure:"binance"`
	Pipeline  Pipeline       `mapstructure:"pipeline"`
	Ensemble  Ensemble       `mapstructure:"ensemble"`
	Risk      Risk           `mapstructure:"risk"`
	Execution Execution      `mapstructure:"execution"`
	Cache     Cache          `mapstructure:"cache"`
	WS        WebSocket      `mapstructure:"websocket"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// Redis backs the notification bus. When Addr is empty the process falls back
// to the in-memory bus and fan-out is scoped to a single instance.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type API struct {
	Port int `mapstructure:"port"`
}

type Binance struct {
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
}

type Pipeline struct {
	Symbols         []string      `mapstructure:"symbols"`
	Timeframe       string        `mapstructure:"timeframe"`
	CandleLimit     int           `mapstructure:"candle_limit"`
	MinCandles      int           `mapstructure:"min_candles"`
	CronExpression  string        `mapstructure:"cron_expression"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	SignalTTL       time.Duration `mapstructure:"signal_ttl"`
	RefreshCooldown time.Duration `mapstructure:"refresh_cooldown"`
}

type Ensemble struct {
	AgreementGap  float64 `mapstructure:"agreement_gap"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

type Risk struct {
	MinRiskReward float64 `mapstructure:"min_risk_reward"`
}

type Execution struct {
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type WebSocket struct {
	SendBufferSize int           `mapstructure:"send_buffer_size"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

func setDefaults() {
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "json")

	viper.SetDefault("redis.channel", "signal_notifications")

	viper.SetDefault("api.port", 8080)

	viper.SetDefault("binance.base_url", "https://api.binance.com")
	viper.SetDefault("binance.timeout", 10*time.Second)
	viper.SetDefault("binance.max_request_per_minute", 1200)

	viper.SetDefault("pipeline.symbols", []string{"BTC/USDT", "ETH/USDT"})
	viper.SetDefault("pipeline.timeframe", "1h")
	viper.SetDefault("pipeline.candle_limit", 100)
	viper.SetDefault("pipeline.min_candles", 50)
	viper.SetDefault("pipeline.cron_expression", "*/15 * * * *")
	viper.SetDefault("pipeline.max_concurrency", 5)
	viper.SetDefault("pipeline.signal_ttl", 24*time.Hour)
	viper.SetDefault("pipeline.refresh_cooldown", 5*time.Minute)

	viper.SetDefault("ensemble.agreement_gap", 0.15)
	viper.SetDefault("ensemble.min_confidence", 0.65)

	viper.SetDefault("risk.min_risk_reward", 1.2)

	viper.SetDefault("execution.max_retries", 3)
	viper.SetDefault("execution.initial_interval", 500*time.Millisecond)
	viper.SetDefault("execution.submit_timeout", 30*time.Second)

	viper.SetDefault("cache.default_expiration", 5*time.Minute)
	viper.SetDefault("cache.cleanup_interval", 10*time.Minute)

	viper.SetDefault("websocket.send_buffer_size", 64)
	viper.SetDefault("websocket.write_timeout", 10*time.Second)
	viper.SetDefault("websocket.pong_timeout", 60*time.Second)
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	setDefaults()

	// A missing config file is fine, env vars and defaults cover everything.
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
