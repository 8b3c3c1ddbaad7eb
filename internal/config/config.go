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

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`    // 服务器配置
	Log       LogConfig                 `mapstructure:"log"`       // 日志配置
	Database  DatabaseConfig            `mapstructure:"database"`  // PostgreSQL配置
	Import    ImportConfig              `mapstructure:"import"`    // CSV导入配置
	FX        FXConfig                  `mapstructure:"fx"`        // 汇率解析配置
	Price     PriceConfig               `mapstructure:"price"`     // 价格刷新配置
	Schedule  ScheduleConfig            `mapstructure:"schedule"`  // 定时任务
	Providers map[string]ProviderConfig `mapstructure:"providers"` // 汇率数据源（bybit/exchangerate-api/tradingview）
	Retailers map[string]ProviderConfig `mapstructure:"retailers"` // 零售商价格接口（steam/gog/xbox...）
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        int      `mapstructure:"port"`         // 服务端口
	Mode        string   `mapstructure:"mode"`         // Gin运行模式：debug/release/test
	CORSOrigins []string `mapstructure:"cors_origins"` // 允许跨域的来源，为空表示全部允许
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"` // debug/info/warn/error
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
	LogLevel        string        `mapstructure:"log_level"`         // GORM日志级别：silent/error/warn/info
}

// ImportConfig CSV批量导入配置
type ImportConfig struct {
	Dir             string `mapstructure:"dir"`              // CSV所在目录
	BatchSize       int    `mapstructure:"batch_size"`       // 每批提交行数
	AggregateTitles bool   `mapstructure:"aggregate_titles"` // 导入title_sources后是否重新聚合评分/平台
}

// FXConfig 汇率解析配置
type FXConfig struct {
	CryptoCodes        []string      `mapstructure:"crypto_codes"`        // 视为加密货币的代码
	CryptoTTL          time.Duration `mapstructure:"crypto_ttl"`          // 加密货币汇率过期时间
	FiatTTL            time.Duration `mapstructure:"fiat_ttl"`            // 法币汇率过期时间
	Retention          time.Duration `mapstructure:"retention"`           // 汇率保留时长，超过即清理
	AlertRatio         float64       `mapstructure:"alert_ratio"`         // 刷新失败比例告警阈值
	RefreshPairs       []string      `mapstructure:"refresh_pairs"`       // 定时刷新的币对，格式 BASE/QUOTE
	ProviderPrecedence []string      `mapstructure:"provider_precedence"` // 多来源同时有效时的优先级
}

// PriceConfig 价格刷新配置
type PriceConfig struct {
	StaleAfter   time.Duration `mapstructure:"stale_after"`   // 超过该时长的价格需要刷新
	Workers      int           `mapstructure:"workers"`       // 并行刷新的游戏数
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"` // 单次零售商请求超时
	BatchLimit   int           `mapstructure:"batch_limit"`   // 定时任务每轮最多刷新的游戏数
}

// ScheduleConfig 定时任务配置（cron表达式，空则不启用）
type ScheduleConfig struct {
	FXCron    string `mapstructure:"fx_cron"`
	PriceCron string `mapstructure:"price_cron"`
}

// ProviderConfig 单个外部数据源的独立配置
type ProviderConfig struct {
	BaseURL   string  `mapstructure:"base_url"`   // API基础地址
	Timeout   int     `mapstructure:"timeout"`    // 请求超时（秒）
	Proxy     string  `mapstructure:"proxy"`      // 代理地址
	APIKey    string  `mapstructure:"api_key"`    // 通用认证Key
	RateLimit float64 `mapstructure:"rate_limit"` // 每秒请求数，<=0 不限速
	Burst     int     `mapstructure:"burst"`      // 突发请求数
	Category  string  `mapstructure:"category"`   // bybit 行情分类（spot/linear/inverse）
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	return Load("./config")
}

// Load 从指定目录读取 config.yaml；文件缺失时使用默认值
func Load(dir string) (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	v := viper.New()
	setDefaults(v)

	// 2. 读取 config.yaml
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	v.SetTypeByDefaultValue(true)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	normalize(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("import.dir", "./data/import")
	v.SetDefault("import.batch_size", 500)
	v.SetDefault("import.aggregate_titles", true)
	v.SetDefault("fx.crypto_codes", []string{"BTC", "ETH"})
	v.SetDefault("fx.crypto_ttl", 5*time.Minute)
	v.SetDefault("fx.fiat_ttl", 15*time.Minute)
	v.SetDefault("fx.retention", 7*24*time.Hour)
	v.SetDefault("fx.alert_ratio", 0.2)
	v.SetDefault("fx.refresh_pairs", []string{"BTC/USD", "ETH/USD", "USD/EUR", "USD/GBP", "USD/JPY", "EUR/GBP"})
	v.SetDefault("fx.provider_precedence", []string{"bybit", "exchangerate-api", "tradingview", "derived-via-usd", "fallback-approx"})
	v.SetDefault("price.stale_after", 24*time.Hour)
	v.SetDefault("price.workers", 4)
	v.SetDefault("price.fetch_timeout", 10*time.Second)
	v.SetDefault("price.batch_limit", 200)
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	overrideKey(cfg.Providers, "exchangerate-api", "FOREX_API_KEY")
	overrideKey(cfg.Providers, "bybit", "BYBIT_API_KEY")
	overrideKey(cfg.Retailers, "steam", "STEAM_API_KEY")
	overrideKey(cfg.Retailers, "amazon", "AMAZON_API_KEY")
}

func overrideKey(m map[string]ProviderConfig, name, env string) {
	p, ok := m[name]
	if !ok {
		return
	}
	if v := os.Getenv(env); v != "" {
		p.APIKey = v
		m[name] = p
	}
}

// normalize 统一大小写、兜底非法值
func normalize(cfg *Config) {
	for i, c := range cfg.FX.CryptoCodes {
		cfg.FX.CryptoCodes[i] = strings.ToUpper(strings.TrimSpace(c))
	}
	if cfg.Import.BatchSize <= 0 {
		cfg.Import.BatchSize = 500
	}
	if cfg.Price.Workers <= 0 {
		cfg.Price.Workers = 1
	}
	if cfg.FX.AlertRatio <= 0 {
		cfg.FX.AlertRatio = 0.2
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	if cfg.Retailers == nil {
		cfg.Retailers = map[string]ProviderConfig{}
	}
}
