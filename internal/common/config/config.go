package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Log      LogConfig      `json:"log"`
	Auth     AuthConfig     `json:"auth"`
	RBAC     RBACConfig     `json:"rbac"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称
	Host     string `json:"host"`      // 服务地址
	HTTPPort int    `json:"http_port"` // HTTP端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

// AuthConfig 会话/令牌配置
type AuthConfig struct {
	JWTSecret      string   `json:"jwt_secret"`      // HS256 密钥
	Issuer         string   `json:"issuer"`          // iss
	Audience       string   `json:"audience"`        // aud
	TokenTTLHours  int      `json:"token_ttl_hours"` // token 有效期（小时）
	SessionCookie  string   `json:"session_cookie"`  // 会话 cookie 名
	PublicRoutes   []string `json:"public_routes"`   // 免登录路由前缀
	LoginRoutes    []string `json:"login_routes"`    // 登录类路由（已登录访问则跳转首页）
	LoginPath      string   `json:"login_path"`      // 登录页路径
	DefaultLanding string   `json:"default_landing"` // 登录后的默认落地页
}

// RBACConfig 角色策略配置。
// 两张表相互独立：路由前缀表决定“能进哪些页面”，动作表决定“能做哪些操作”。
// 留空时使用 rbac 包内置的默认策略。
type RBACConfig struct {
	RoleRoutes  map[string][]string `json:"role_routes"`  // role -> 允许的路由前缀
	RoleActions map[string][]string `json:"role_actions"` // role -> 允许的动作
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		// 如果配置文件不存在，使用默认配置
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "fleet-server",
			Host:     "0.0.0.0",
			HTTPPort: 8080,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "fleetlink",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "localhost:6831",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
		Auth: AuthConfig{
			JWTSecret:      "dev-only-secret",
			Issuer:         "fleetlink",
			Audience:       "fleetlink",
			TokenTTLHours:  24,
			SessionCookie:  "fleet_session",
			PublicRoutes:   []string{"/auth/login", "/auth/register", "/auth/forgot-password", "/healthz"},
			LoginRoutes:    []string{"/auth/login", "/auth/forgot-password"},
			LoginPath:      "/auth/login",
			DefaultLanding: "/dashboard",
		},
		// RBAC 默认为空：策略表退回 rbac.DefaultTable()
		RBAC: RBACConfig{},
	}
}
