package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lucci-xyz/bounty-sub003/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Siwe     SiweConfig     `mapstructure:"siwe"`
	Github   GithubConfig   `mapstructure:"github"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Task     TaskConfig     `mapstructure:"task"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
	BaseURL string `mapstructure:"base_url"` // 部署对外地址

	AllowedOrigins []string `mapstructure:"allowed_origins"` // 允许携带 cookie 的跨域来源
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	Name   string `mapstructure:"name"`
	Secret string `mapstructure:"secret"`  // 会话ID签名密钥，至少 32 字节
	MaxAge int    `mapstructure:"max_age"` // 秒
	Secure bool   `mapstructure:"secure"`
}

// SiweConfig 钱包签名登录默认参数
type SiweConfig struct {
	Domain         string `mapstructure:"domain"`
	URI            string `mapstructure:"uri"`
	Statement      string `mapstructure:"statement"`
	DefaultChainID int64  `mapstructure:"default_chain_id"`
	NonceTTL       int    `mapstructure:"nonce_ttl"` // 秒
}

// GithubConfig GitHub OAuth 配置
type GithubConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// AuthConfig 管理员白名单，按部署注入
type AuthConfig struct {
	AdminGithubIDs []int64 `mapstructure:"admin_github_ids"`
}

// ChainConfig 多网络配置
type ChainConfig struct {
	RPCTimeout    int                      `mapstructure:"rpc_timeout"`    // 秒
	SubmitTimeout int                      `mapstructure:"submit_timeout"` // 提交并等待回执的超时，秒
	Confirmations int                      `mapstructure:"confirmations"`  // 确认区块数
	Networks      map[string]NetworkConfig `mapstructure:"networks"`       // 网络别名 -> 配置
}

// NetworkConfig 单个网络配置
type NetworkConfig struct {
	ChainID       int64  `mapstructure:"chain_id"`
	RPCURL        string `mapstructure:"rpc_url"`
	EscrowAddress string `mapstructure:"escrow_address"` // 托管合约地址
	PrivateKey    string `mapstructure:"private_key"`    // 代管退款签名私钥，可为空
}

type TaskConfig struct {
	Interval int `mapstructure:"interval"` // 秒
	Workers  int `mapstructure:"workers"`  // 并发协程数
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// SetDefaults 设置默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "bounty")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("session.name", "bounty_session")
	v.SetDefault("session.max_age", 86400)
	v.SetDefault("session.secure", false)
	v.SetDefault("siwe.domain", "localhost:8080")
	v.SetDefault("siwe.uri", "http://localhost:8080")
	v.SetDefault("siwe.statement", "Sign in to link your wallet with your GitHub account.")
	v.SetDefault("siwe.default_chain_id", 1)
	v.SetDefault("siwe.nonce_ttl", 86400)
	v.SetDefault("chain.rpc_timeout", 15)
	v.SetDefault("chain.submit_timeout", 120)
	v.SetDefault("chain.confirmations", 2)
	v.SetDefault("task.interval", 300)
	v.SetDefault("task.workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
}

func Load() *Config {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/bounty")

	SetDefaults(v)

	// 自动读取环境变量，如 BOUNTY_DATABASE_HOST
	v.SetEnvPrefix("bounty")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return &config
}

// MinSessionSecretLen 会话签名密钥最小长度
const MinSessionSecretLen = 32

// Validate 校验启动必需的配置
func (c *Config) Validate() error {
	if len(c.Session.Secret) < MinSessionSecretLen {
		return fmt.Errorf("session.secret must be at least %d bytes", MinSessionSecretLen)
	}
	if c.Session.MaxAge <= 0 {
		return fmt.Errorf("session.max_age must be positive, got %d", c.Session.MaxAge)
	}
	return nil
}
