package util

import (
	"log/slog"
	"time"
)

// Trace 计时辅助，用法: defer util.Trace("segment")()
func Trace(name string) func() {
	start := time.Now()
	return func() {
		slog.Info("trace", "name", name, "cost", time.Since(start))
	}
}
