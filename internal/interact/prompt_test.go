package interact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorPrompt(t *testing.T) {
	det := DefaultDetector()
	cases := []struct {
		text string
		rule string
		ok   bool
	}{
		{"<HUAWEI>", "vrp", true},
		{"[H3C-GigabitEthernet1/0/1]  ", "vrp", true},
		{"display version\r\nVersion 1.0\r\n<Device>", "vrp", true},
		{"Router#", "ios", true},
		{"switch-01>\r\n\r\n", "ios", true},
		{"\x1b[32mR1(config)#\x1b[0m", "ios", true},
		{"admin@fw: ~ >", "generic", true},
		{"Version 1.0", "", false},
		{"<HUAWEI>\r\nVersion 1.0", "", false},
		{"", "", false},
		{"   \r\n\t\n", "", false},
	}
	for _, tc := range cases {
		rule, ok := det.MatchPrompt(tc.text)
		assert.Equal(t, tc.ok, ok, "文本: %q", tc.text)
		assert.Equal(t, tc.rule, rule, "文本: %q", tc.text)
	}
}

func TestDetectorPagination(t *testing.T) {
	det := DefaultDetector()
	assert.True(t, det.HasPagination("line\r\n  ---- More ----"))
	assert.True(t, det.HasPagination(" --More-- "))
	assert.True(t, det.HasPagination("Press any key to continue (Q to quit)"))
	assert.False(t, det.HasPagination("--more--"), "分页提示区分大小写")
	assert.False(t, det.HasPagination(""))
	assert.False(t, det.HasPagination("  \n "))
}

func TestDetectorCountPaginationAndEndsAtPrompt(t *testing.T) {
	det := NewDetector(nil, MergeBanners([]string{"<--- More --->"}))
	assert.Equal(t, 2, det.CountPagination("a\r\n--More--\r\nb\r\n--More--"))
	assert.Equal(t, 0, det.CountPagination(" \n"))

	assert.True(t, det.EndsAtPrompt("line1\r\n--More--\r\nline2\r\n<Device>"))
	assert.False(t, det.EndsAtPrompt("line1\r\n--More--"))
	assert.False(t, det.EndsAtPrompt("line1\r\n<--- More --->"), "形似提示符的分页提示不算提示符")
	assert.True(t, det.IsPrompt("line1\r\n<--- More --->"))
}

func TestCompilePromptRulesAppendsCustom(t *testing.T) {
	rules, err := CompilePromptRules([]string{"", `\$$`})
	require.NoError(t, err)
	require.Len(t, rules, len(DefaultPromptRules())+1)

	det := NewDetector(rules, nil)
	rule, ok := det.MatchPrompt("user@linux-box:~$ ")
	assert.True(t, ok)
	assert.Equal(t, "custom-2", rule)

	_, err = CompilePromptRules([]string{"("})
	assert.Error(t, err)
}

func TestMergeBanners(t *testing.T) {
	banners := MergeBanners([]string{"--More--", "<--- More --->", " "})
	assert.Len(t, banners, len(DefaultPaginationBanners())+1)
	assert.Contains(t, banners, "<--- More --->")
}
