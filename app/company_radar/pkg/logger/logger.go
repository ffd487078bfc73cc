package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log 全局日志实例，InitLogger 之前也可用（输出到 stderr）
var Log = newLogger(os.Stderr, logrus.InfoLevel)

// CustomFormatter 格式: [TIME] [LEVL] [FILE:LINE] [component] MSG k=v
type CustomFormatter struct{}

// Format 实现 logrus.Formatter 接口
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var fileLine string
	if entry.HasCaller() {
		fileLine = fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}

	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] [%s] ", entry.Time.Format("2006-01-02 15:04:05"), level, fileLine)
	if c, ok := entry.Data[componentKey]; ok {
		fmt.Fprintf(&sb, "[%v] ", c)
	}
	sb.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != componentKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Data[k])
	}
	sb.WriteByte('\n')
	return []byte(sb.String()), nil
}

const componentKey = "component"

// For 返回带组件名的日志条目
func For(component string) *logrus.Entry {
	return Log.WithField(componentKey, component)
}

// Discard 返回丢弃输出的日志条目，测试使用
func Discard() *logrus.Entry {
	return logrus.NewEntry(newLogger(io.Discard, logrus.PanicLevel))
}

func newLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetReportCaller(true)
	l.SetFormatter(&CustomFormatter{})
	l.SetLevel(level)
	l.SetOutput(w)
	return l
}

// InitLogger 初始化日志，同时输出到控制台和文件
func InitLogger(levelStr string, filePath string) error {
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	writers := []io.Writer{os.Stdout}
	if filePath != "" {
		if logDir := filepath.Dir(filePath); logDir != "." {
			if err := os.MkdirAll(logDir, 0o755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		writers = append(writers, file)
	}

	// 替换内部状态而不是指针，已经派生的 Entry 继续有效
	Log.SetLevel(level)
	Log.SetOutput(io.MultiWriter(writers...))
	return nil
}
