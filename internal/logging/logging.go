// Package logging builds the process logger. The interactive manager
// owns the terminal, so log output goes to a rotating file when one is
// configured and to the supplied fallback writer otherwise.
package logging

import (
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const ServiceName = "fleetjobs"

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, text
	File       string // rotating log file; empty uses the fallback writer
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger pairs the configured entry with whatever must be closed on exit.
type Logger struct {
	*logrus.Entry
	closer io.Closer
}

func New(cfg Config, fallback io.Writer) *Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportCaller(true)

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "text") {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  "2006-01-02T15:04:05.000Z07:00",
			CallerPrettyfier: callerPrettyfier,
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
			CallerPrettyfier: callerPrettyfier,
		})
	}

	out := &Logger{}
	if file := strings.TrimSpace(cfg.File); file != "" {
		w := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    positiveOr(cfg.MaxSizeMB, 20),
			MaxBackups: positiveOr(cfg.MaxBackups, 3),
			MaxAge:     positiveOr(cfg.MaxAgeDays, 14),
		}
		log.SetOutput(w)
		out.closer = w
	} else if fallback != nil {
		log.SetOutput(fallback)
	} else {
		log.SetOutput(io.Discard)
	}

	out.Entry = log.WithField("service", ServiceName)
	return out
}

// Discard returns a logger that drops everything. Used by tests and as
// the default for components constructed without a logger.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Discard()
	}
	return l
}

func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func callerPrettyfier(frame *runtime.Frame) (string, string) {
	fn := frame.Function
	if idx := strings.LastIndex(fn, "/"); idx != -1 {
		fn = fn[idx+1:]
	}
	return fn, filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
