package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-balance-desk/pkg/mysql"
)

// 儲存後端
const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

// Config 服務設定
// 來源優先順序: 環境變數 (含 .env) > config.yaml > 程式預設值
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	MySQL   mysql.Config  `yaml:"mysql"`
	Auth    AuthConfig    `yaml:"auth"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Notify  NotifyConfig  `yaml:"notify"`
	CORS    CORSConfig    `yaml:"cors"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	// Driver: mysql | memory
	Driver  string `yaml:"driver"`
	WALPath string `yaml:"wal_path"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	Issuer     string        `yaml:"issuer"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
	// AdminKey 管理端 API 需要帶 X-Admin-Key；空字串代表不檢查
	AdminKey string `yaml:"admin_key"`
}

type RedisConfig struct {
	// Addr 空字串代表不啟用登入限流
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	LoginLimit  int           `yaml:"login_limit"`
	LoginWindow time.Duration `yaml:"login_window"`
}

type KafkaConfig struct {
	// Brokers 空代表不發佈事件
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type SMTPConfig struct {
	// Host 空字串代表不寄信
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	From         string `yaml:"from"`
	AdminAddress string `yaml:"admin_address"`
	ImplicitTLS  bool   `yaml:"implicit_tls"`
}

type NotifyConfig struct {
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load 讀取設定
//
// 參數:
//
//	path: yaml 檔路徑，檔案不存在時只使用預設值與環境變數
//
// 回傳:
//
//	Config: 設定
//	error: 檔案格式錯誤或必要欄位缺少
func Load(path string) (Config, error) {
	// .env 不存在是正常的
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	cfgData, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv 以 BALANCE_* 環境變數覆寫
func (c *Config) applyEnv() {
	c.Server.HTTPAddr = getEnvOrDefault("BALANCE_HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnvOrDefault("BALANCE_GRPC_ADDR", c.Server.GRPCAddr)

	c.Storage.Driver = getEnvOrDefault("BALANCE_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.WALPath = getEnvOrDefault("BALANCE_WAL_PATH", c.Storage.WALPath)

	c.MySQL.Host = getEnvOrDefault("BALANCE_DB_HOST", c.MySQL.Host)
	c.MySQL.Port = getEnvAsInt("BALANCE_DB_PORT", c.MySQL.Port)
	c.MySQL.User = getEnvOrDefault("BALANCE_DB_USER", c.MySQL.User)
	c.MySQL.Password = getEnvOrDefault("BALANCE_DB_PASSWORD", c.MySQL.Password)
	c.MySQL.DBName = getEnvOrDefault("BALANCE_DB_NAME", c.MySQL.DBName)

	c.Auth.JWTSecret = getEnvOrDefault("BALANCE_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = getEnvAsDuration("BALANCE_TOKEN_TTL", c.Auth.TokenTTL)
	c.Auth.AdminKey = getEnvOrDefault("BALANCE_ADMIN_KEY", c.Auth.AdminKey)

	c.Redis.Addr = getEnvOrDefault("BALANCE_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvOrDefault("BALANCE_REDIS_PASSWORD", c.Redis.Password)

	if brokers := getEnvOrDefault("BALANCE_KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.Topic = getEnvOrDefault("BALANCE_KAFKA_TOPIC", c.Kafka.Topic)

	c.SMTP.Host = getEnvOrDefault("BALANCE_SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port = getEnvAsInt("BALANCE_SMTP_PORT", c.SMTP.Port)
	c.SMTP.Username = getEnvOrDefault("BALANCE_SMTP_USERNAME", c.SMTP.Username)
	c.SMTP.Password = getEnvOrDefault("BALANCE_SMTP_PASSWORD", c.SMTP.Password)
	c.SMTP.AdminAddress = getEnvOrDefault("BALANCE_ADMIN_EMAIL", c.SMTP.AdminAddress)

	if origins := getEnvOrDefault("BALANCE_CORS_ORIGINS", ""); origins != "" {
		c.CORS.AllowedOrigins = splitList(origins)
	}
	c.Log.Level = getEnvOrDefault("BALANCE_LOG_LEVEL", c.Log.Level)
}

// applyDefaults 補全預設配置 (如果 yaml 沒寫)
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":5000"
	}
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":50051"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
	if c.Storage.WALPath == "" {
		c.Storage.WALPath = "wal.log"
	}

	if c.MySQL.Port == 0 {
		c.MySQL.Port = 3306
	}
	if c.MySQL.MaxOpenConns == 0 {
		c.MySQL.MaxOpenConns = 100
	}
	if c.MySQL.MaxIdleConns == 0 {
		c.MySQL.MaxIdleConns = 10
	}
	if c.MySQL.ConnMaxLifetime == 0 {
		c.MySQL.ConnMaxLifetime = 30 * time.Minute
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "go-balance-desk"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}

	if c.Redis.LoginLimit == 0 {
		c.Redis.LoginLimit = 10
	}
	if c.Redis.LoginWindow == 0 {
		c.Redis.LoginWindow = time.Minute
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "balance.notifications"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}

	if c.Notify.QueueSize == 0 {
		c.Notify.QueueSize = 1000
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 10 * time.Second
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate 檢查必要欄位
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMySQL:
		if c.MySQL.Host == "" || c.MySQL.DBName == "" {
			return errors.New("mysql storage requires mysql.host and mysql.db_name")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (BALANCE_JWT_SECRET) is required")
	}
	if c.SMTP.Host != "" && c.SMTP.AdminAddress == "" {
		return errors.New("smtp.admin_address is required when smtp is enabled")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
