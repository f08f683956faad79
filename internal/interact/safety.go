package interact

import (
	"fmt"
	"strings"

	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

// DefaultDangerousTerms 改变设备状态的命令片段
func DefaultDangerousTerms() []string {
	return []string{
		"system-view", "configure", "write", "save", "reboot", "reset",
		"delete", "format", "shutdown", "undo", "clear",
	}
}

// DefaultReadOnlyVerbs 已知的只读命令前缀
func DefaultReadOnlyVerbs() []string {
	return []string{
		"display", "show", "dir", "ping", "tracert", "traceroute", "telnet",
		"ssh", "ifconfig", "ipconfig", "netstat", "ip route",
	}
}

// Verdict 命令校验结论
type Verdict struct {
	Allowed bool
	// Warned 允许执行但不在已知只读列表中
	Warned bool
	// Term 命中的危险片段
	Term   string
	Reason string
}

// Validator 只读策略校验器，创建后只读，可并发使用
//
// 危险片段按子串匹配而非整词匹配，命令任意位置出现即拦截，
// 例如 display diagnostic-information 含 format 也会被拦截。
type Validator struct {
	readOnly  bool
	dangerous []string
	verbs     []string
}

// NewValidator 创建校验器；词表为空时使用默认词表
func NewValidator(readOnly bool, dangerous, readOnlyVerbs []string) *Validator {
	if len(dangerous) == 0 {
		dangerous = DefaultDangerousTerms()
	}
	if len(readOnlyVerbs) == 0 {
		readOnlyVerbs = DefaultReadOnlyVerbs()
	}
	return &Validator{
		readOnly:  readOnly,
		dangerous: normalizeTerms(dangerous),
		verbs:     normalizeTerms(readOnlyVerbs),
	}
}

// ReadOnly 是否启用只读模式
func (v *Validator) ReadOnly() bool {
	return v.readOnly
}

// Validate 校验一条命令
func (v *Validator) Validate(command string) Verdict {
	if !v.readOnly {
		return Verdict{Allowed: true}
	}
	cmd := strings.ToLower(strings.TrimSpace(command))

	for _, term := range v.dangerous {
		if strings.Contains(cmd, term) {
			return Verdict{
				Allowed: false,
				Term:    term,
				Reason:  fmt.Sprintf("blocked by read-only policy: contains %q", term),
			}
		}
	}

	for _, verb := range v.verbs {
		if strings.Contains(cmd, verb) {
			return Verdict{Allowed: true}
		}
	}

	logger.WithField("command", command).Warn("command is not in the read-only list, executing anyway")
	return Verdict{
		Allowed: true,
		Warned:  true,
		Reason:  "command is not in the read-only list",
	}
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
