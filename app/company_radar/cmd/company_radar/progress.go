package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/iWorld-y/company_radar/app/company_radar/pkg/logger"
	"github.com/iWorld-y/company_radar/app/company_radar/pkg/model"
)

// progressPrinter 把进度写到 w，警告和错误同时记日志
func progressPrinter(w io.Writer) model.ProgressFunc {
	log := logger.For("cli")
	var mu sync.Mutex
	return func(msg string, fraction float64, status model.ProgressStatus) {
		switch status {
		case model.StatusWarning:
			log.Warn(msg)
		case model.StatusError:
			log.Error(msg)
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "[%3.0f%%] %s\n", fraction*100, msg)
	}
}
