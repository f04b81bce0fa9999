// Package crlog provides severity-gated logging for the terrain engine,
// backed by a rotating log file when one is configured.
package crlog

import (
	"fmt"
	"log"
	"time"

	"github.com/natefinch/lumberjack"
)

// ModeFlag is the minimum severity that will be written to the log.
type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var mode ModeFlag

var logger = stdLogger{}

// SetMode sets the severity required for a log message to be written.
// Only the process entrypoint should call this, at startup.
func SetMode(m ModeFlag) {
	mode = m
}

// Config describes where log output should go. An empty Logfile sends
// output to the standard log package's default writer, standard error.
type Config struct {
	Logfile string
	MaxSize int `toml:"max_log_size"` // megabytes
	MaxAge  int `toml:"max_log_age"`  // days
}

// Configure points the logger at a rotating file, or leaves it on
// standard error if c is nil or names no file.
func Configure(c *Config) {
	if c == nil || c.Logfile == "" {
		Infof("no log file configured, logging to stderr\n")
		return
	}
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	log.SetOutput(l)
	logger = stdLogger{file: l}
}

type stdLogger struct {
	file *lumberjack.Logger
}

func (s stdLogger) write(level, format string, args ...interface{}) {
	log.Printf(level+" "+format, args...)
}

func Debugf(format string, args ...interface{}) {
	if mode <= DebugMode {
		logger.write("DEBUG", format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if mode <= InfoMode {
		logger.write(" INFO", format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if mode <= WarningMode {
		logger.write(" WARN", format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if mode <= ErrorMode {
		logger.write("ERROR", format, args...)
	}
}

func Criticalf(format string, args ...interface{}) {
	if mode <= CriticalMode {
		logger.write(" CRIT", format, args...)
	}
}

// TimeLog annotates a later log call with elapsed time since its creation,
// e.g. for frame timing or fetch latency.
type TimeLog struct {
	start time.Time
	label string
}

func NewTimeLog(label string) TimeLog {
	return TimeLog{start: time.Now(), label: label}
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	if mode <= DebugMode {
		msg := fmt.Sprintf(format, args...)
		logger.write("DEBUG", "%s: %s (%s)\n", t.label, msg, time.Since(t.start))
	}
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	if mode <= InfoMode {
		msg := fmt.Sprintf(format, args...)
		logger.write(" INFO", "%s: %s (%s)\n", t.label, msg, time.Since(t.start))
	}
}
