package interact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDemarcateDisplayVersion(t *testing.T) {
	det := DefaultDetector()
	out := det.Demarcate("display version\r\nVersion 1.0\r\n<Device>", "display version", "10.0.0.1")
	assert.Equal(t, "Version 1.0", out)
}

func TestDemarcateDropsDecoration(t *testing.T) {
	det := DefaultDetector()
	raw := strings.Join([]string{
		"<Device>display interface brief",
		"",
		"Interface   PHY   Protocol",
		"GE0/0/1     up    up",
		"  ---- More ----\x1b[16D                \x1b[16DGE0/0/2     down  down",
		"\x1b[1mLoop0       up    up(s)\x1b[0m",
		"<Device>",
	}, "\r\n")

	out := det.Demarcate(raw, "display interface brief", "10.0.0.1")
	assert.Equal(t, "Interface   PHY   Protocol\nGE0/0/1     up    up\nGE0/0/2     down  down\nLoop0       up    up(s)", out)
	assert.NotContains(t, out, "More")
	assert.NotContains(t, out, "<Device>")
}

func TestDemarcateIsIdempotent(t *testing.T) {
	det := DefaultDetector()
	raws := []string{
		"display version\r\nVersion 1.0\r\n<Device>",
		"show clock\r\n*10:00:01.123 UTC Mon Jan 1 2024\r\n --More-- \r\n\r\nR1#",
		"",
		"   \r\n",
	}
	for _, raw := range raws {
		once := det.Demarcate(raw, "show clock", "r1")
		assert.Equal(t, once, det.Demarcate(once, "show clock", "r1"), "原始输出: %q", raw)
	}
}

func TestDemarcateBlankCommandKeepsLines(t *testing.T) {
	det := DefaultDetector()
	assert.Equal(t, "Version 1.0", det.Demarcate("Version 1.0\n<Device>", "   ", "r1"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "abc", sanitize("\x1b[31mabc\x1b[0m"))
	assert.Equal(t, "ab", sanitize("abc\b"))
	assert.Equal(t, "a\tb", sanitize("a\tb\x07"))
	assert.Equal(t, "设备", sanitize("设备\x00"))
}
