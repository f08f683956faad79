package interact

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sshcollectorpro/netbatch/pkg/logger"
)

// Demarcate 清洗一条命令的原始累计输出：
// 去除空行、命令回显、分页提示与提示符行，剩余行以 "\n" 连接。
// 对自身输出再次执行结果不变。device 仅用于日志。
func (d *Detector) Demarcate(raw, command, device string) string {
	cmd := strings.TrimSpace(command)
	// 分页横幅之后设备会用光标回退重绘下一行，先断开以免正文随横幅一并丢弃
	for _, b := range d.banners {
		raw = strings.ReplaceAll(raw, b, b+"\n")
	}
	lines := splitLines(raw)
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.TrimSpace(sanitize(line))
		if clean == "" {
			continue
		}
		if cmd != "" && strings.Contains(clean, cmd) {
			continue
		}
		if d.HasPagination(clean) {
			continue
		}
		if d.IsPrompt(clean) {
			continue
		}
		kept = append(kept, clean)
	}
	out := strings.Join(kept, "\n")

	logger.WithFields(logrus.Fields{
		"device":  device,
		"command": cmd,
		"raw":     len(raw),
		"clean":   len(out),
	}).Debug("output demarcated")
	return out
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

// sanitize 移除 ANSI 转义序列与不可见控制字符（保留制表符）
func sanitize(s string) string {
	rs := []rune(s)
	out := make([]rune, 0, len(rs))
	for i := 0; i < len(rs); i++ {
		ch := rs[i]
		switch {
		case ch == 0x1b:
			// CSI: ESC [ 参数 ... 终结字符；其他转义仅跳过下一个字符
			if i+1 < len(rs) && rs[i+1] == '[' {
				i += 2
				for i < len(rs) && !isFinalByte(rs[i]) {
					i++
				}
			} else {
				i++
			}
		case ch == '\b':
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		case ch < 0x20 && ch != '\t', ch == 0x7f:
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}

func isFinalByte(r rune) bool {
	return r >= 0x40 && r <= 0x7e
}
