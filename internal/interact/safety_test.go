package interact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatorReadOnly(t *testing.T) {
	v := NewValidator(true, nil, nil)
	cases := []struct {
		cmd     string
		allowed bool
		warned  bool
		term    string
	}{
		{"display version", true, false, ""},
		{"  SHOW ip interface brief ", true, false, ""},
		{"display reboot-info", false, false, "reboot"},
		{"REBOOT", false, false, "reboot"},
		{"system-view", false, false, "system-view"},
		{"display diagnostic-information", false, false, "format"},
		{"undo shutdown", false, false, "shutdown"},
		{"uptime", true, true, ""},
	}
	for _, tc := range cases {
		got := v.Validate(tc.cmd)
		assert.Equal(t, tc.allowed, got.Allowed, "命令: %q", tc.cmd)
		assert.Equal(t, tc.warned, got.Warned, "命令: %q", tc.cmd)
		assert.Equal(t, tc.term, got.Term, "命令: %q", tc.cmd)
		if !tc.allowed {
			assert.Contains(t, got.Reason, tc.term)
		}
	}
}

func TestValidatorDisabled(t *testing.T) {
	v := NewValidator(false, nil, nil)
	got := v.Validate("reboot")
	assert.True(t, got.Allowed)
	assert.False(t, got.Warned)
	assert.False(t, v.ReadOnly())
}

func TestValidatorCustomVocabulary(t *testing.T) {
	v := NewValidator(true, []string{" Commit "}, []string{"get"})
	assert.False(t, v.Validate("commit confirmed").Allowed)
	assert.True(t, v.Validate("reboot").Allowed, "自定义危险词表替换默认词表")
	assert.False(t, v.Validate("get system status").Warned)
}
