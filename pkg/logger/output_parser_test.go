package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestParseOutputLines(t *testing.T) {
	lines := ParseOutputLines("a\r\nb\r\nc\r\nd\r\ne\r\nf", 2)
	assert.Equal(t, []string{"a", "b"}, lines.HeadLines)
	assert.Equal(t, []string{"e", "f"}, lines.TailLines)
	assert.Equal(t, 6, lines.Total)

	short := ParseOutputLines("only\n", 5)
	assert.Equal(t, []string{"only"}, short.HeadLines)
	assert.Empty(t, short.TailLines, "行数不足时不应重复输出尾部")

	assert.Equal(t, 0, ParseOutputLines("", 3).Total)
}

func TestDebugCommandOutputRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.InfoLevel)

	DebugCommandOutput(logrus.NewEntry(l), "display version", "Version 1.0", 3)
	assert.Empty(t, buf.String(), "info 级别下不应输出预览")

	l.SetLevel(logrus.DebugLevel)
	DebugCommandOutput(logrus.NewEntry(l), "display version", "Version 1.0", 3)
	assert.Contains(t, buf.String(), "display version")
	assert.Contains(t, buf.String(), "Version 1.0")
}
