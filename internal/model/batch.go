package model

import (
	"strconv"
	"time"
)

// Device 清单中的一台设备，读取后不再修改
type Device struct {
	Host     string `json:"host" mapstructure:"ip"`
	Port     int    `json:"port,omitempty" mapstructure:"port"`
	Username string `json:"username" mapstructure:"user"`
	Password string `json:"-" mapstructure:"pwd"`
	Vendor   string `json:"vendor,omitempty" mapstructure:"vendor"`
	KeyFile  string `json:"key_file,omitempty" mapstructure:"key_file"`
}

// Address 返回 host:port，端口缺省为 22
func (d Device) Address() string {
	port := d.Port
	if port <= 0 || port > 65535 {
		port = 22
	}
	return d.Host + ":" + strconv.Itoa(port)
}

// CommandOutcome 单条命令的执行结果
type CommandOutcome struct {
	Command string        `json:"command"`
	Output  string        `json:"output"`
	Length  int           `json:"length"`
	Elapsed time.Duration `json:"elapsed"`
	// TimedOut 超时仍返回已读取的部分输出
	TimedOut bool `json:"timed_out,omitempty"`
	// Blocked 被只读策略拦截，未下发到设备
	Blocked bool `json:"blocked,omitempty"`
	// Interrupted 因中断标志提前结束
	Interrupted bool `json:"interrupted,omitempty"`
	// Pages 发送的分页续读按键次数
	Pages int `json:"pages,omitempty"`
}

// ErrorKind 设备级失败分类
type ErrorKind string

const (
	ErrorKindNone           ErrorKind = ""
	ErrorKindAuth           ErrorKind = "auth_failure"
	ErrorKindConnectTimeout ErrorKind = "connect_timeout"
	ErrorKindTransport      ErrorKind = "transport_error"
	ErrorKindInterrupted    ErrorKind = "interrupted"
	ErrorKindUnexpected     ErrorKind = "unexpected"
)

// DeviceResult 单台设备的结果；成功时携带有序的命令结果，失败时携带错误描述
type DeviceResult struct {
	Host      string           `json:"ip"`
	Vendor    string           `json:"vendor,omitempty"`
	Success   bool             `json:"success"`
	Outcomes  []CommandOutcome `json:"outputs,omitempty"`
	ErrorKind ErrorKind        `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
}

// FailedResult 构造失败结果
func FailedResult(dev Device, kind ErrorKind, msg string) DeviceResult {
	return DeviceResult{
		Host:      dev.Host,
		Vendor:    dev.Vendor,
		Success:   false,
		ErrorKind: kind,
		Error:     msg,
		StartedAt: time.Now(),
	}
}

// FleetReport 一次批量执行的汇总，Results 按完成顺序排列
type FleetReport struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Commands    []string       `json:"commands"`
	Results     []DeviceResult `json:"results"`
	Total       int            `json:"total"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Interrupted bool           `json:"interrupted"`
}

// Add 追加一条设备结果并更新计数
func (r *FleetReport) Add(res DeviceResult) {
	r.Results = append(r.Results, res)
	r.Total = len(r.Results)
	if res.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// FailedHosts 失败设备列表（按完成顺序）
func (r *FleetReport) FailedHosts() []string {
	hosts := make([]string, 0, r.Failed)
	for _, res := range r.Results {
		if !res.Success {
			hosts = append(hosts, res.Host)
		}
	}
	return hosts
}

// SucceededHosts 成功设备列表（按完成顺序）
func (r *FleetReport) SucceededHosts() []string {
	hosts := make([]string, 0, r.Succeeded)
	for _, res := range r.Results {
		if res.Success {
			hosts = append(hosts, res.Host)
		}
	}
	return hosts
}
