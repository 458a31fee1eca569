package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Business BusinessConfig `mapstructure:"business"`
	Mail     MailConfig     `mapstructure:"mail"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN 按驱动拼接连接串
func (c DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.Name)
	}
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	CoursePurchased string `mapstructure:"course_purchased"`
	TopUpPaid       string `mapstructure:"topup_paid"`
}

// GatewayConfig 支付网关（发票接口）配置
type GatewayConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	SecretKey string        `mapstructure:"secret_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type BusinessConfig struct {
	MinTopUpAmount    int64         `mapstructure:"min_topup_amount"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconcileGrace    time.Duration `mapstructure:"reconcile_grace"`
	ReconcileBatch    int           `mapstructure:"reconcile_batch"`
	OutboxInterval    time.Duration `mapstructure:"outbox_interval"`
	OutboxBatch       int           `mapstructure:"outbox_batch"`
	MaxRetryCount     int           `mapstructure:"max_retry_count"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
}

type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Sender   string `mapstructure:"sender"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "coursepay")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.course_purchased", "course.purchased")
	v.SetDefault("kafka.topic.topup_paid", "topup.paid")

	v.SetDefault("gateway.base_url", "https://api.xendit.co")
	v.SetDefault("gateway.secret_key", "")
	v.SetDefault("gateway.timeout", 10*time.Second)

	v.SetDefault("business.min_topup_amount", 1)
	v.SetDefault("business.reconcile_interval", time.Minute)
	v.SetDefault("business.reconcile_grace", 5*time.Minute)
	v.SetDefault("business.reconcile_batch", 100)
	v.SetDefault("business.outbox_interval", time.Second)
	v.SetDefault("business.outbox_batch", 100)
	v.SetDefault("business.max_retry_count", 3)
	v.SetDefault("business.lock_ttl", 10*time.Second)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.user", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.sender", "")
}

// Load 加载配置文件，环境变量 COURSEPAY_* 覆盖文件中的同名项。
// path 为空时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COURSEPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验必填项与取值范围
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 非法: %d", c.Server.Port))
	}
	if c.Database.Driver != "mysql" && c.Database.Driver != "postgres" {
		errs = append(errs, fmt.Errorf("database.driver 不支持: %q", c.Database.Driver))
	}
	if c.Gateway.BaseURL == "" {
		errs = append(errs, errors.New("gateway.base_url 不能为空"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("gateway.timeout 必须大于0"))
	}
	if c.Business.MinTopUpAmount < 1 {
		errs = append(errs, errors.New("business.min_topup_amount 必须大于0"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers 不能为空"))
	}
	if c.Mail.Enabled && (c.Mail.Host == "" || c.Mail.Sender == "") {
		errs = append(errs, errors.New("mail.host 和 mail.sender 不能为空"))
	}
	return errors.Join(errs...)
}
