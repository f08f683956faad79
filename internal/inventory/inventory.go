// Package inventory 读取设备清单与命令列表。
package inventory

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/sshcollectorpro/netbatch/internal/model"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Inventory 设备清单，设备顺序与文件一致
type Inventory struct {
	Devices []model.Device
	// Recipients 清单 email 列中出现的收件人，去重保序
	Recipients []string
}

// fileInventory 结构化清单文件（yaml/json）
type fileInventory struct {
	Devices    []deviceRecord `mapstructure:"devices"`
	Recipients []string       `mapstructure:"recipients"`
}

type deviceRecord struct {
	model.Device `mapstructure:",squash"`
	Email        string `mapstructure:"email"`
}

// Load 按扩展名读取清单：.csv 或 .yaml/.yml/.json
func Load(path string) (*Inventory, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open inventory: %w", err)
		}
		defer f.Close()
		return ParseCSV(f)
	case ".yaml", ".yml", ".json":
		return loadStructured(path)
	default:
		return nil, fmt.Errorf("unsupported inventory format %q", filepath.Ext(path))
	}
}

// ParseCSV 解析 CSV 清单。首行含 ip 列名时按列名映射，否则按 ip,user,pwd,vendor,key_file,port,email 顺序；
// 容忍 UTF-8 BOM，缺少地址或用户名的行跳过并告警。
func ParseCSV(r io.Reader) (*Inventory, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse inventory csv: %w", err)
	}

	columns := map[string]int{"ip": 0, "user": 1, "pwd": 2, "vendor": 3, "key_file": 4, "port": 5, "email": 6}
	if len(rows) > 0 && hasHeader(rows[0]) {
		columns = headerIndex(rows[0])
		rows = rows[1:]
	}

	inv := &Inventory{}
	seen := map[string]bool{}
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		get := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		dev := model.Device{
			Host:     get("ip"),
			Username: get("user"),
			Password: get("pwd"),
			Vendor:   strings.ToLower(get("vendor")),
			KeyFile:  get("key_file"),
		}
		if p := get("port"); p != "" {
			port, perr := strconv.Atoi(p)
			if perr != nil || port <= 0 || port > 65535 {
				logger.Warnf("inventory row %d: invalid port %q, using default", i+1, p)
			} else {
				dev.Port = port
			}
		}
		if err := validateDevice(dev); err != nil {
			logger.Warnf("inventory row %d skipped: %v", i+1, err)
			continue
		}
		inv.Devices = append(inv.Devices, dev)
		inv.addRecipients(get("email"), seen)
	}
	if len(inv.Devices) == 0 {
		return nil, errors.New("inventory contains no valid devices")
	}
	return inv, nil
}

func loadStructured(path string) (*Inventory, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	var fi fileInventory
	if err := v.Unmarshal(&fi); err != nil {
		return nil, fmt.Errorf("parse inventory: %w", err)
	}

	inv := &Inventory{}
	seen := map[string]bool{}
	for _, r := range fi.Recipients {
		inv.addRecipients(r, seen)
	}
	for i, rec := range fi.Devices {
		dev := rec.Device
		dev.Host = strings.TrimSpace(dev.Host)
		dev.Vendor = strings.ToLower(strings.TrimSpace(dev.Vendor))
		if err := validateDevice(dev); err != nil {
			logger.Warnf("inventory device #%d skipped: %v", i+1, err)
			continue
		}
		inv.Devices = append(inv.Devices, dev)
		inv.addRecipients(rec.Email, seen)
	}
	if len(inv.Devices) == 0 {
		return nil, errors.New("inventory contains no valid devices")
	}
	return inv, nil
}

func validateDevice(dev model.Device) error {
	if dev.Host == "" {
		return errors.New("missing ip")
	}
	if strings.ContainsAny(dev.Host, " \t/") {
		return fmt.Errorf("invalid host %q", dev.Host)
	}
	if dev.Username == "" {
		return fmt.Errorf("%s: missing user", dev.Host)
	}
	if dev.Password == "" && dev.KeyFile == "" {
		return fmt.Errorf("%s: missing pwd or key_file", dev.Host)
	}
	return nil
}

func (inv *Inventory) addRecipients(field string, seen map[string]bool) {
	for _, addr := range strings.FieldsFunc(field, func(r rune) bool { return r == ';' || r == ',' || r == ' ' }) {
		if !seen[addr] {
			seen[addr] = true
			inv.Recipients = append(inv.Recipients, addr)
		}
	}
}

func hasHeader(row []string) bool {
	for _, c := range row {
		if strings.EqualFold(strings.TrimSpace(c), "ip") {
			return true
		}
	}
	return false
}

func headerIndex(row []string) map[string]int {
	aliases := map[string]string{
		"host": "ip", "address": "ip",
		"username": "user",
		"password": "pwd", "passwd": "pwd",
		"key": "key_file", "keyfile": "key_file",
	}
	idx := make(map[string]int, len(row))
	for i, c := range row {
		name := strings.ToLower(strings.TrimSpace(c))
		if a, ok := aliases[name]; ok {
			name = a
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// LoadCommands 读取命令文件，每行一条，空行丢弃
func LoadCommands(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open commands: %w", err)
	}
	defer f.Close()
	return ParseCommands(f)
}

// ParseCommands 解析命令列表，保持顺序
func ParseCommands(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var cmds []string
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, string(utf8BOM))
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cmds = append(cmds, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}
	if len(cmds) == 0 {
		return nil, errors.New("command list is empty")
	}
	return cmds, nil
}
