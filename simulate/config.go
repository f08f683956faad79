// Package simulate 基于 x/crypto/ssh 的网络设备模拟器：
// 提供交互式 Shell、提示符、命令回显与分页，用于本地试运行与端到端测试。
package simulate

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FileConfig simulate.yaml 配置结构
type FileConfig struct {
	Password    string         `mapstructure:"password"`
	HostKeyFile string         `mapstructure:"host_key_file"`
	Devices     []DeviceConfig `mapstructure:"devices"`
}

// DeviceConfig 一台模拟设备
type DeviceConfig struct {
	Hostname string `mapstructure:"hostname"`
	Listen   string `mapstructure:"listen"`
	// Style 提示符与分页风格：vrp 为 <name> 与 "---- More ----"，ios 为 name# 与 "--More--"
	Style     string `mapstructure:"style"`
	Password  string `mapstructure:"password"`
	PageLines int    `mapstructure:"page_lines"`
	Banner    string `mapstructure:"banner"`
	// Encoding 输出编码，gbk 时中文按 GBK 发送
	Encoding string `mapstructure:"encoding"`
	// AuthorizedKeys 允许登录的公钥（authorized_keys 格式）
	AuthorizedKeys []string `mapstructure:"authorized_keys"`
	// Commands 命令 -> 输出，按小写命令匹配
	Commands map[string]string `mapstructure:"commands"`
	// DropOn 收到这些命令时直接断开连接
	DropOn []string `mapstructure:"drop_on"`
}

func (d DeviceConfig) withDefaults(password string) DeviceConfig {
	if d.Hostname == "" {
		d.Hostname = "Device"
	}
	if d.Listen == "" {
		d.Listen = "127.0.0.1:0"
	}
	d.Style = strings.ToLower(strings.TrimSpace(d.Style))
	if d.Style != "ios" {
		d.Style = "vrp"
	}
	if d.Password == "" {
		d.Password = password
	}
	if d.Password == "" {
		d.Password = "nova"
	}
	cmds := make(map[string]string, len(d.Commands))
	for k, v := range d.Commands {
		cmds[normalizeCommand(k)] = v
	}
	d.Commands = cmds
	return d
}

// LoadConfig 读取模拟器配置文件
func LoadConfig(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("password", "nova")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read simulate config: %w", err)
	}
	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal simulate config: %w", err)
	}
	if len(cfg.Devices) == 0 {
		return nil, fmt.Errorf("simulate config %s has no devices", path)
	}
	return &cfg, nil
}

func normalizeCommand(cmd string) string {
	return strings.ToLower(strings.Join(strings.Fields(cmd), " "))
}
