package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Email    EmailConfig    `mapstructure:"email"`
	OSS      OSSConfig      `mapstructure:"oss"`
	Stream   StreamConfig   `mapstructure:"stream"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CheckoutQPS     float64       `mapstructure:"checkout_qps"`   // 每个 IP 每秒允许的下单请求数
	CheckoutBurst   int           `mapstructure:"checkout_burst"` // 突发
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
	LogLevel string `mapstructure:"log_level"` // silent/error/warn/info
}

// DSN 返回 golang-migrate 使用的连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type AppConfig struct {
	Env          string `mapstructure:"env"`
	Debug        bool   `mapstructure:"debug"`
	StoreName    string `mapstructure:"store_name"`
	SupportEmail string `mapstructure:"support_email"`
	SiteURL      string `mapstructure:"site_url"` // 店铺前台地址，用于邮件中的订单链接
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// CheckoutConfig 下单相关配置
type CheckoutConfig struct {
	Currency string `mapstructure:"currency"`
	// ReturnURL 支付完成后的跳转地址，{order_number} 会被替换为订单号
	ReturnURL string `mapstructure:"return_url"`
	NotifyURL string `mapstructure:"notify_url"`
	// 数据库 site_settings 中没有配置时使用的默认运费设置
	DeliveryCharge        string `mapstructure:"delivery_charge"`
	FreeDeliveryThreshold string `mapstructure:"free_delivery_threshold"`
	// 游客下单时是否自动创建账号
	CreateGuestAccounts bool `mapstructure:"create_guest_accounts"`
}

// PaymentConfig 支付网关配置，Provider 决定启动时选择哪个网关
type PaymentConfig struct {
	Provider string          `mapstructure:"provider"` // cashfree/alipay/wechat
	Timeout  time.Duration   `mapstructure:"timeout"`
	Cashfree CashfreeConfig  `mapstructure:"cashfree"`
	Alipay   AlipayConfig    `mapstructure:"alipay"`
	Wechat   WechatPayConfig `mapstructure:"wechat"`
}

type CashfreeConfig struct {
	AppID      string `mapstructure:"app_id"`
	SecretKey  string `mapstructure:"secret_key"`
	Mode       string `mapstructure:"mode"` // sandbox/production
	APIVersion string `mapstructure:"api_version"`
	// 回调时间戳允许的最大偏差
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
}

type AlipayConfig struct {
	AppID        string `mapstructure:"app_id"`
	PrivateKey   string `mapstructure:"private_key"`   // 应用私钥
	PublicKey    string `mapstructure:"public_key"`    // 支付宝公钥 (不是应用公钥)
	NotifyURL    string `mapstructure:"notify_url"`    // 异步通知地址
	ReturnURL    string `mapstructure:"return_url"`    // 同步跳转地址
	IsProduction bool   `mapstructure:"is_production"` // 是否生产环境
}

type WechatPayConfig struct {
	AppID                string `mapstructure:"app_id"`
	MchID                string `mapstructure:"mch_id"`
	MchCertificateSerial string `mapstructure:"mch_cert_serial"`
	MchPrivateKey        string `mapstructure:"mch_private_key"`
	APIv3Key             string `mapstructure:"apiv3_key"`
	NotifyURL            string `mapstructure:"notify_url"`
}

// DeliveryConfig 物流配置
type DeliveryConfig struct {
	Provider   string           `mapstructure:"provider"` // delhivery/shiprocket
	Timeout    time.Duration    `mapstructure:"timeout"`
	Pickup     PickupConfig     `mapstructure:"pickup"`
	Delhivery  DelhiveryConfig  `mapstructure:"delhivery"`
	Shiprocket ShiprocketConfig `mapstructure:"shiprocket"`
	// 商品未配置重量时每件的默认重量 (克)
	DefaultItemWeightGrams int `mapstructure:"default_item_weight_grams"`
}

type PickupConfig struct {
	Name       string `mapstructure:"name"` // 在物流后台登记的取件点名称
	Phone      string `mapstructure:"phone"`
	Address    string `mapstructure:"address"`
	City       string `mapstructure:"city"`
	State      string `mapstructure:"state"`
	PostalCode string `mapstructure:"postal_code"`
	Country    string `mapstructure:"country"`
}

type DelhiveryConfig struct {
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

type ShiprocketConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	BaseURL  string `mapstructure:"base_url"`
}

// EmailConfig 邮件配置
type EmailConfig struct {
	Provider   string        `mapstructure:"provider"` // brevo/aliyun/log
	From       string        `mapstructure:"from"`
	FromName   string        `mapstructure:"from_name"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	MaxRetry   int           `mapstructure:"max_retry"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Brevo      BrevoConfig   `mapstructure:"brevo"`
	Aliyun     DirectMail    `mapstructure:"aliyun"`
}

type BrevoConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// DirectMail 阿里云邮件推送
type DirectMail struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	RegionID        string `mapstructure:"region_id"` // e.g., "cn-hangzhou"
}

// OSSConfig 回调原文归档
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	Prefix          string `mapstructure:"prefix"`
}

// Enabled 是否配置了 OSS
func (c OSSConfig) Enabled() bool {
	return c.Endpoint != "" && c.BucketName != ""
}

// StreamConfig 订单事件写入 Kafka，brokers 为空时关闭
type StreamConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled 是否配置了 Kafka
func (c StreamConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	// JWT 配置验证
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	// 数据库配置验证
	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	// Redis 配置验证
	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	// 支付网关
	switch c.Payment.Provider {
	case "cashfree":
		if c.Payment.Cashfree.AppID == "" || c.Payment.Cashfree.SecretKey == "" {
			return errors.New("cashfree credentials are required")
		}
		if c.Payment.Cashfree.WebhookTolerance <= 0 {
			return errors.New("cashfree webhook_tolerance must be positive")
		}
	case "alipay":
		if c.Payment.Alipay.AppID == "" {
			return errors.New("alipay config missing")
		}
	case "wechat":
		if c.Payment.Wechat.MchID == "" {
			return errors.New("wechat pay config missing")
		}
	default:
		return fmt.Errorf("unsupported payment provider %q", c.Payment.Provider)
	}

	// 物流：允许不配置（后台手动录入运单号）
	switch c.Delivery.Provider {
	case "", "delhivery", "shiprocket":
	default:
		return fmt.Errorf("unsupported delivery provider %q", c.Delivery.Provider)
	}

	switch c.Email.Provider {
	case "brevo", "aliyun", "log":
	default:
		return fmt.Errorf("unsupported email provider %q", c.Email.Provider)
	}
	if c.Email.From == "" {
		return errors.New("email.from is required")
	}

	if c.Checkout.NotifyURL == "" {
		return errors.New("checkout.notify_url is required")
	}

	return nil
}

// setDefaults 默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.checkout_qps", 2)
	v.SetDefault("server.checkout_burst", 5)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("jwt.expire", 24)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.store_name", "Rakhi Store")
	v.SetDefault("log.level", "info")

	v.SetDefault("checkout.currency", "INR")
	v.SetDefault("checkout.delivery_charge", "49")
	v.SetDefault("checkout.free_delivery_threshold", "499")
	v.SetDefault("checkout.create_guest_accounts", true)

	v.SetDefault("payment.provider", "cashfree")
	v.SetDefault("payment.timeout", "10s")
	v.SetDefault("payment.cashfree.mode", "sandbox")
	v.SetDefault("payment.cashfree.api_version", "2023-08-01")
	v.SetDefault("payment.cashfree.webhook_tolerance", "5m")

	v.SetDefault("delivery.timeout", "15s")
	v.SetDefault("delivery.default_item_weight_grams", 200)
	v.SetDefault("delivery.pickup.country", "India")

	v.SetDefault("email.provider", "log")
	v.SetDefault("email.timeout", "10s")
	v.SetDefault("email.workers", 2)
	v.SetDefault("email.queue_size", 100)
	v.SetDefault("email.max_retry", 3)
	v.SetDefault("email.retry_delay", "2s")

	v.SetDefault("oss.prefix", "webhooks")
	v.SetDefault("stream.topic", "order-status-updated")
}

// Load 从指定目录读取配置，不做校验，便于测试
func Load(env string, paths ...string) (Config, error) {
	var cfg Config
	v := viper.New()

	// 根据环境选择配置文件
	configName := "config"
	if env != "" && env != "dev" {
		configName = "config." + env
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量，PAYMENT_CASHFREE_SECRET_KEY -> payment.cashfree.secret_key
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	// 手动覆盖，AutomaticEnv 只对已知 key 生效
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.JWT.Secret = jwtSecret
	}

	return cfg, nil
}

// LoadConfig 加载配置
func LoadConfig() {
	// 本地开发时从 .env 读取密钥，文件不存在时忽略
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	cfg, err := Load(env, "./configs", ".")
	if err != nil {
		log.Fatalf("Unable to load config: %v", err)
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	GlobalConfig = cfg
	log.Printf("Configuration loaded and validated successfully. Environment: %s", GlobalConfig.App.Env)
}
