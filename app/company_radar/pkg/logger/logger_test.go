package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestCustomFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, logrus.DebugLevel)

	l.WithField(componentKey, "engine").WithField("year", 2023).WithField("owner", "alice").Info("月报生成完成")

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "["))
	assert.Contains(t, line, "[INFO]")
	assert.Contains(t, line, "logger_test.go:")
	assert.Contains(t, line, "[engine] 月报生成完成 owner=alice year=2023")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestWarningLevelIsTruncated(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, logrus.DebugLevel)
	l.Warn("x")
	assert.Contains(t, buf.String(), "[WARN]")
}
