package daemon

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aqademiq/aqsync/internal/config"
)

// NewLogger builds the daemon logger. With a log file configured, output
// goes to stderr and a size-rotated file; otherwise stderr only.
func NewLogger(cfg config.LogConfig) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}
	return log.New(w, "[daemon] ", log.LstdFlags)
}
