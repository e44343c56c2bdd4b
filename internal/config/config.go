package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Security  SecurityConfig  `mapstructure:"security"`
	PSP       PSPConfig       `mapstructure:"psp"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Gateways  []GatewayConfig `mapstructure:"gateways"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 管理端 JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	PublicRateLimit RateLimitConfig `mapstructure:"public_rate_limit"` // 回跳与通知接口限流
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// PSPConfig 远端支付服务配置
type PSPConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig 熔断配置
type BreakerConfig struct {
	MaxRequests         uint32 `mapstructure:"max_requests"`
	IntervalSeconds     int    `mapstructure:"interval_seconds"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	ConsecutiveFailures uint32 `mapstructure:"consecutive_failures"`
}

// ReconcileConfig 对账与动作配置
type ReconcileConfig struct {
	DisableRemoteCancel  bool   `mapstructure:"disable_remote_cancel"` // 全局关闭远端取消
	DisableRemoteShip    bool   `mapstructure:"disable_remote_ship"`   // 全局关闭远端发货
	TrackingParam        string `mapstructure:"tracking_param"`
	TrackingValue        string `mapstructure:"tracking_value"`
	SweepLockTTLSeconds  int    `mapstructure:"sweep_lock_ttl_seconds"`
	SweepFallbackMinutes int    `mapstructure:"sweep_fallback_minutes"` // 无网关配置到期时间时的兜底间隔
	SweepBatchSize       int    `mapstructure:"sweep_batch_size"`
	ReconcileOnReturn    bool   `mapstructure:"reconcile_on_return"`
	WebhookResourceParam string `mapstructure:"webhook_resource_param"`
	ReturnOrderIDParam   string `mapstructure:"return_order_id_param"`
	ReturnOrderKeyParam  string `mapstructure:"return_order_key_param"`
	PendingLandingMarker string `mapstructure:"pending_landing_marker"`
}

// GatewayConfig 单个支付网关配置
type GatewayConfig struct {
	ID                  string `mapstructure:"id"`                    // 支付方式标识
	Handler             string `mapstructure:"handler"`               // psp / host
	DueDateMinutes      int    `mapstructure:"due_date_minutes"`      // 未支付过期时间（分钟）
	DueDateDays         int    `mapstructure:"due_date_days"`         // 银行转账类网关按天配置
	AutoCancelOnExpiry  bool   `mapstructure:"auto_cancel_on_expiry"` // 由过期扫描接管未支付取消
	DisableRemoteCancel bool   `mapstructure:"disable_remote_cancel"`
	DisableRemoteShip   bool   `mapstructure:"disable_remote_ship"`
	CancelledStatus     string `mapstructure:"cancelled_status"` // 远端取消/过期时的本地状态
	ReturnURL           string `mapstructure:"return_url"`
	FailureURL          string `mapstructure:"failure_url"`
}

// DueDuration 返回统一换算为分钟的过期时长
func (g GatewayConfig) DueDuration() time.Duration {
	if g.DueDateDays > 0 {
		return time.Duration(g.DueDateDays) * 24 * time.Hour
	}
	if g.DueDateMinutes > 0 {
		return time.Duration(g.DueDateMinutes) * time.Minute
	}
	return 0
}

// IsPSP 是否由远端支付服务处理
func (g GatewayConfig) IsPSP() bool {
	return strings.EqualFold(strings.TrimSpace(g.Handler), constants.GatewayHandlerPSP)
}

// ResolveCancelledStatus 返回远端取消时应写入的本地状态
func (g GatewayConfig) ResolveCancelledStatus() string {
	switch strings.TrimSpace(g.CancelledStatus) {
	case constants.OrderStatusPending:
		return constants.OrderStatusPending
	case constants.OrderStatusFailed:
		return constants.OrderStatusFailed
	default:
		return constants.OrderStatusCancelled
	}
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	SetDefaults(v)

	// 环境变量支持
	v.AutomaticEnv()                                   // 自动读取环境变量
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 server.port -> SERVER_PORT)

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := Decode(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return cfg
}

// Decode 将 viper 实例解析为配置并做归一化
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults 注册默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/payrecon.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "pr")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Authorization",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.public_rate_limit.window_seconds", 60)
	v.SetDefault("security.public_rate_limit.max_requests", 300)
	v.SetDefault("psp.base_url", "https://api.mollie.com")
	v.SetDefault("psp.api_key", "")
	v.SetDefault("psp.timeout_seconds", 12)
	v.SetDefault("psp.breaker.max_requests", 1)
	v.SetDefault("psp.breaker.interval_seconds", 60)
	v.SetDefault("psp.breaker.timeout_seconds", 30)
	v.SetDefault("psp.breaker.consecutive_failures", 5)
	v.SetDefault("reconcile.disable_remote_cancel", false)
	v.SetDefault("reconcile.disable_remote_ship", false)
	v.SetDefault("reconcile.tracking_param", "utm_nooverride")
	v.SetDefault("reconcile.tracking_value", "1")
	v.SetDefault("reconcile.sweep_lock_ttl_seconds", 300)
	v.SetDefault("reconcile.sweep_fallback_minutes", 60)
	v.SetDefault("reconcile.sweep_batch_size", 200)
	v.SetDefault("reconcile.reconcile_on_return", true)
	v.SetDefault("reconcile.webhook_resource_param", "id")
	v.SetDefault("reconcile.return_order_id_param", "order_id")
	v.SetDefault("reconcile.return_order_key_param", "key")
	v.SetDefault("reconcile.pending_landing_marker", "pending")
}

func (c *Config) normalize() {
	if c.Reconcile.SweepLockTTLSeconds <= 0 {
		c.Reconcile.SweepLockTTLSeconds = 300
	}
	if c.Reconcile.SweepBatchSize <= 0 {
		c.Reconcile.SweepBatchSize = 200
	}
	if strings.TrimSpace(c.Reconcile.TrackingParam) == "" {
		c.Reconcile.TrackingParam = "utm_nooverride"
	}
	for i := range c.Gateways {
		c.Gateways[i].ID = strings.TrimSpace(c.Gateways[i].ID)
		handler := strings.ToLower(strings.TrimSpace(c.Gateways[i].Handler))
		if handler == "" {
			handler = constants.GatewayHandlerPSP
		}
		c.Gateways[i].Handler = handler
	}
}

// Validate 校验网关配置
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Gateways))
	for _, gw := range c.Gateways {
		if gw.ID == "" {
			return fmt.Errorf("gateway id is required")
		}
		if _, ok := seen[gw.ID]; ok {
			return fmt.Errorf("duplicate gateway id: %s", gw.ID)
		}
		seen[gw.ID] = struct{}{}
		if gw.Handler != constants.GatewayHandlerPSP && gw.Handler != constants.GatewayHandlerHost {
			return fmt.Errorf("gateway %s has unsupported handler: %s", gw.ID, gw.Handler)
		}
		if gw.DueDateMinutes < 0 || gw.DueDateDays < 0 {
			return fmt.Errorf("gateway %s has negative due date", gw.ID)
		}
	}
	return nil
}
