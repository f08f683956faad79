package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/sshcollectorpro/netbatch/internal/interact"
	"github.com/sshcollectorpro/netbatch/internal/util"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
	"github.com/sshcollectorpro/netbatch/pkg/ssh"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig            `mapstructure:"server"`
	SSH       SSHConfig               `mapstructure:"ssh"`
	Execution ExecutionConfig         `mapstructure:"execution"`
	Interact  InteractConfig          `mapstructure:"interact"`
	Vendors   map[string]VendorConfig `mapstructure:"vendors"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Report    ReportConfig            `mapstructure:"report"`
	Log       logger.Config           `mapstructure:"log"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SSHConfig 会话建立相关配置
type SSHConfig struct {
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	Port           int           `mapstructure:"port"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	// BannerWait 打开 Shell 后等待首个提示符的最长时间
	BannerWait   time.Duration `mapstructure:"banner_wait"`
	MaxActive    int           `mapstructure:"max_active"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
	TermWidth    int           `mapstructure:"term_width"`
}

// ExecutionConfig 命令执行配置
type ExecutionConfig struct {
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
	ReadonlyMode   bool          `mapstructure:"readonly_mode"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ContinueDelay  time.Duration `mapstructure:"continue_delay"`
	ChunkSize      int           `mapstructure:"chunk_size"`
	// OutputEncoding auto | utf-8 | gbk | gb18030 | big5
	OutputEncoding string `mapstructure:"output_encoding"`
	PreviewLines   int    `mapstructure:"preview_lines"`
}

// InteractConfig 提示符、分页与只读词表
type InteractConfig struct {
	// PromptPatterns 追加在内置规则之后的提示符正则
	PromptPatterns []string `mapstructure:"prompt_patterns"`
	// PaginationBanners 追加的分页提示
	PaginationBanners []string `mapstructure:"pagination_banners"`
	ContinueKey       string   `mapstructure:"continue_key"`
	// LineTerminator lf | crlf | cr
	LineTerminator    string   `mapstructure:"line_terminator"`
	DangerousCommands []string `mapstructure:"dangerous_commands"`
	ReadonlyCommands  []string `mapstructure:"readonly_commands"`
}

// VendorConfig 厂商会话前后命令
type VendorConfig struct {
	// PreCommands 登录后执行（通常用于关闭分页），结果不记录
	PreCommands []string `mapstructure:"pre_commands"`
	// ExitCommands 释放会话前尽力发送
	ExitCommands []string `mapstructure:"exit_commands"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置，Path 为空时不记录执行历史
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ReportConfig 报告输出配置
type ReportConfig struct {
	Dir string `mapstructure:"dir"`
	// Backend local | minio
	Backend string      `mapstructure:"backend"`
	Prefix  string      `mapstructure:"prefix"`
	Minio   MinioConfig `mapstructure:"minio"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
}

var (
	globalConfig *Config
	mu           sync.RWMutex
)

// Load 加载配置文件；未指定路径且默认位置没有文件时仅使用默认值与环境变量
func Load(configPath string) (*Config, error) {
	v := viper.GetViper()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("NETBATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	globalConfig = &config
	mu.Unlock()
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 18080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)

	v.SetDefault("ssh.session_timeout", 10*time.Second)
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.keep_alive", 30*time.Second)
	v.SetDefault("ssh.banner_wait", 5*time.Second)
	v.SetDefault("ssh.max_active", 0)
	v.SetDefault("ssh.reap_interval", 30*time.Second)
	v.SetDefault("ssh.term_width", 200)

	v.SetDefault("execution.command_timeout", 15*time.Second)
	v.SetDefault("execution.max_concurrency", 5)
	v.SetDefault("execution.rate_limit_delay", 500*time.Millisecond)
	v.SetDefault("execution.readonly_mode", true)
	v.SetDefault("execution.poll_interval", 100*time.Millisecond)
	v.SetDefault("execution.continue_delay", 300*time.Millisecond)
	v.SetDefault("execution.chunk_size", 65535)
	v.SetDefault("execution.output_encoding", "auto")
	v.SetDefault("execution.preview_lines", 5)

	v.SetDefault("interact.continue_key", " ")
	v.SetDefault("interact.line_terminator", "lf")
	v.SetDefault("interact.dangerous_commands", interact.DefaultDangerousTerms())
	v.SetDefault("interact.readonly_commands", interact.DefaultReadOnlyVerbs())

	v.SetDefault("vendors", map[string]interface{}{
		"huawei": map[string]interface{}{
			"pre_commands":  []string{"screen-length 0 temporary"},
			"exit_commands": []string{"quit"},
		},
		"h3c": map[string]interface{}{
			"pre_commands":  []string{"screen-length disable"},
			"exit_commands": []string{"quit"},
		},
		"cisco": map[string]interface{}{
			"pre_commands":  []string{"terminal length 0"},
			"exit_commands": []string{"exit"},
		},
		"default": map[string]interface{}{
			"exit_commands": []string{"quit"},
		},
	})

	v.SetDefault("database.sqlite.max_idle_conns", 2)
	v.SetDefault("database.sqlite.max_open_conns", 1)
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)

	v.SetDefault("report.dir", "./reports")
	v.SetDefault("report.backend", "local")
	v.SetDefault("report.prefix", "netbatch")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/netbatch.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
}

// Get 获取全局配置
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Set 替换全局配置
func Set(c *Config) {
	mu.Lock()
	globalConfig = c
	mu.Unlock()
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if c.Execution.MaxConcurrency <= 0 {
		return fmt.Errorf("execution.max_concurrency must be positive, got %d", c.Execution.MaxConcurrency)
	}
	if c.SSH.SessionTimeout <= 0 {
		return fmt.Errorf("ssh.session_timeout must be positive, got %s", c.SSH.SessionTimeout)
	}
	if c.Execution.CommandTimeout <= 0 {
		return fmt.Errorf("execution.command_timeout must be positive, got %s", c.Execution.CommandTimeout)
	}
	if _, err := util.EncodingByName(c.Execution.OutputEncoding); err != nil {
		return err
	}
	switch strings.ToLower(c.Report.Backend) {
	case "", "local", "minio":
	default:
		return fmt.Errorf("report.backend must be local or minio, got %q", c.Report.Backend)
	}
	return nil
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Limits 单条命令的执行参数
func (c *Config) Limits() (interact.Limits, error) {
	enc, err := util.EncodingByName(c.Execution.OutputEncoding)
	if err != nil {
		return interact.Limits{}, err
	}
	return interact.Limits{
		CommandTimeout: c.Execution.CommandTimeout,
		RateLimitDelay: c.Execution.RateLimitDelay,
		PollInterval:   c.Execution.PollInterval,
		ContinueDelay:  c.Execution.ContinueDelay,
		ChunkSize:      c.Execution.ChunkSize,
		LineTerminator: lineTerminator(c.Interact.LineTerminator),
		ContinueKey:    c.Interact.ContinueKey,
		Encoding:       enc,
		PreviewLines:   c.Execution.PreviewLines,
	}, nil
}

// Detector 按配置构建提示符识别器
func (c *Config) Detector() (*interact.Detector, error) {
	rules, err := interact.CompilePromptRules(c.Interact.PromptPatterns)
	if err != nil {
		return nil, err
	}
	return interact.NewDetector(rules, interact.MergeBanners(c.Interact.PaginationBanners)), nil
}

// Validator 按配置构建只读校验器
func (c *Config) Validator() *interact.Validator {
	return interact.NewValidator(c.Execution.ReadonlyMode, c.Interact.DangerousCommands, c.Interact.ReadonlyCommands)
}

// SSHPool 会话提供者的连接池参数
func (c *Config) SSHPool() ssh.PoolConfig {
	return ssh.PoolConfig{
		MaxActive:    c.SSH.MaxActive,
		ReapInterval: c.SSH.ReapInterval,
		SSH: ssh.Config{
			Timeout:   c.SSH.SessionTimeout,
			KeepAlive: c.SSH.KeepAlive,
			TermWidth: c.SSH.TermWidth,
		},
	}
}

// Vendor 厂商配置，名称不区分大小写，未知厂商回退到 default
func (c *Config) Vendor(name string) VendorConfig {
	key := strings.ToLower(strings.TrimSpace(name))
	if vc, ok := c.Vendors[key]; ok && key != "" {
		return vc
	}
	return c.Vendors["default"]
}

func lineTerminator(name string) string {
	switch name {
	case "\n", "\r\n", "\r":
		return name
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "crlf":
		return "\r\n"
	case "cr":
		return "\r"
	default:
		return "\n"
	}
}
