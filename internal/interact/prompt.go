package interact

import (
	"fmt"
	"regexp"
	"strings"
)

// PromptRule 提示符匹配规则，作用于最后一个非空行
type PromptRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultPromptRules 默认提示符规则，按顺序匹配
//
//	vrp:     <HUAWEI>  [H3C]  [~HUAWEI-GigabitEthernet0/0/1]
//	ios:     Router#  switch-01>  R1(config)#
//	generic: 任何以 > # ] 结尾的行
func DefaultPromptRules() []PromptRule {
	return []PromptRule{
		{Name: "vrp", Pattern: regexp.MustCompile(`^[<\[].*[>\]]$`)},
		{Name: "ios", Pattern: regexp.MustCompile(`^\S+[>#]$`)},
		{Name: "generic", Pattern: regexp.MustCompile(`[>#\]]$`)},
	}
}

// DefaultPaginationBanners 默认分页提示，区分大小写按子串匹配
func DefaultPaginationBanners() []string {
	return []string{
		"---- More ----",
		"--More--",
		"Press any key to continue",
		"---(more)---",
	}
}

// Detector 提示符与分页识别器，无状态，可并发使用
type Detector struct {
	prompts []PromptRule
	banners []string
}

// NewDetector 创建识别器；规则或提示为空时使用默认值
func NewDetector(prompts []PromptRule, banners []string) *Detector {
	if len(prompts) == 0 {
		prompts = DefaultPromptRules()
	}
	if len(banners) == 0 {
		banners = DefaultPaginationBanners()
	}
	return &Detector{prompts: prompts, banners: banners}
}

// DefaultDetector 使用默认规则的识别器
func DefaultDetector() *Detector {
	return NewDetector(nil, nil)
}

// CompilePromptRules 编译配置中的附加提示符正则，追加在默认规则之后
func CompilePromptRules(patterns []string) ([]PromptRule, error) {
	rules := DefaultPromptRules()
	for i, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid prompt pattern %q: %w", p, err)
		}
		rules = append(rules, PromptRule{Name: fmt.Sprintf("custom-%d", i+1), Pattern: re})
	}
	return rules, nil
}

// MergeBanners 默认分页提示与配置附加项合并去重
func MergeBanners(extra []string) []string {
	banners := DefaultPaginationBanners()
	seen := make(map[string]struct{}, len(banners))
	for _, b := range banners {
		seen[b] = struct{}{}
	}
	for _, b := range extra {
		if strings.TrimSpace(b) == "" {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		banners = append(banners, b)
	}
	return banners
}

// MatchPrompt 判断文本最后一个非空行是否为提示符，返回命中的规则名
func (d *Detector) MatchPrompt(text string) (string, bool) {
	return d.matchLine(lastNonEmptyLine(text))
}

func (d *Detector) matchLine(line string) (string, bool) {
	if line == "" {
		return "", false
	}
	for _, r := range d.prompts {
		if r.Pattern.MatchString(line) {
			return r.Name, true
		}
	}
	return "", false
}

// IsPrompt 最后一个非空行是否为提示符
func (d *Detector) IsPrompt(text string) bool {
	_, ok := d.MatchPrompt(text)
	return ok
}

// HasPagination 文本中是否包含分页提示
func (d *Detector) HasPagination(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, b := range d.banners {
		if strings.Contains(text, b) {
			return true
		}
	}
	return false
}

// CountPagination 文本中分页提示出现的次数
func (d *Detector) CountPagination(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := 0
	for _, b := range d.banners {
		n += strings.Count(text, b)
	}
	return n
}

// EndsAtPrompt 最后一个非空行是提示符且不是分页提示（如 "<--- More --->" 形似 vrp 提示符）
func (d *Detector) EndsAtPrompt(text string) bool {
	line := lastNonEmptyLine(text)
	if d.HasPagination(line) {
		return false
	}
	_, ok := d.matchLine(line)
	return ok
}

func lastNonEmptyLine(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(sanitize(lines[i]))
		if line != "" {
			return line
		}
	}
	return ""
}
