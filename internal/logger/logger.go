// Package logger is a small leveled logger with colored console output and an
// optional plain-text log file.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the logging level.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = map[Level]string{
	DEBUG: "\033[36m", // Cyan
	INFO:  "\033[32m", // Green
	WARN:  "\033[33m", // Yellow
	ERROR: "\033[31m", // Red
	FATAL: "\033[35m", // Magenta
}

const colorReset = "\033[0m"

// Logger is the main logger instance.
type Logger struct {
	mu          sync.Mutex
	level       Level
	output      io.Writer
	colorEnable bool
	prefix      string

	// file receives the same lines without color codes, when set.
	file     *os.File
	filePath string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger with the specified level.
func Init(levelStr string) {
	once.Do(func() {
		defaultLogger = &Logger{
			level:       parseLevel(levelStr),
			output:      os.Stdout,
			colorEnable: true,
		}
	})
}

// InitWithFile initializes the default logger and additionally writes every
// line to dir/YYYY-MM-DD_HH-MM-SS_TZ.log.
func InitWithFile(levelStr, dir string) error {
	Init(levelStr)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	name := time.Now().Format("2006-01-02_15-04-05_MST") + ".log"
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	if defaultLogger.file != nil {
		defaultLogger.file.Close()
	}
	defaultLogger.level = parseLevel(levelStr)
	defaultLogger.file = f
	defaultLogger.filePath = path
	return nil
}

// GetLogFilePath returns the current log file path, or "" when logging to
// console only.
func GetLogFilePath() string {
	if defaultLogger == nil {
		return ""
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	return defaultLogger.filePath
}

// Close flushes and closes the log file, if any.
func Close() {
	if defaultLogger == nil {
		return
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	if defaultLogger.file != nil {
		defaultLogger.file.Sync()
		defaultLogger.file.Close()
		defaultLogger.file = nil
	}
}

// SetLevel sets the logging level for the default logger.
func SetLevel(levelStr string) {
	if defaultLogger == nil {
		Init(levelStr)
		return
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.level = parseLevel(levelStr)
}

// SetOutput sets the console destination for the default logger.
func SetOutput(w io.Writer) {
	if defaultLogger == nil {
		Init("info")
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.output = w
}

// SetColorEnable enables or disables color output.
func SetColorEnable(enable bool) {
	if defaultLogger == nil {
		Init("info")
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.colorEnable = enable
}

// parseLevel converts a string to a Level.
func parseLevel(levelStr string) Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// log writes a log message if the level is sufficient.
func (l *Logger) log(level Level, format string, args ...interface{}) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	message := fmt.Sprintf(format, args...)
	levelName := levelNames[level]
	plain := fmt.Sprintf("[%s] %s", levelName, message)

	console := plain
	if l.colorEnable {
		console = fmt.Sprintf("%s[%s]%s %s", levelColors[level], levelName, colorReset, message)
	}
	log.New(l.output, l.prefix, log.LstdFlags).Println(console)

	if l.file != nil {
		log.New(l.file, l.prefix, log.LstdFlags).Println(plain)
	}

	if level == FATAL {
		if l.file != nil {
			l.file.Sync()
		}
		os.Exit(1)
	}
}

func logDefault(level Level, format string, args ...interface{}) {
	Init("info") // no-op once initialized
	defaultLogger.log(level, format, args...)
}

// Debug logs a debug message.
func Debug(format string, args ...interface{}) { logDefault(DEBUG, format, args...) }

// Debugf is an alias for Debug.
func Debugf(format string, args ...interface{}) { logDefault(DEBUG, format, args...) }

// Info logs an info message.
func Info(format string, args ...interface{}) { logDefault(INFO, format, args...) }

// Infof is an alias for Info.
func Infof(format string, args ...interface{}) { logDefault(INFO, format, args...) }

// Warn logs a warning message.
func Warn(format string, args ...interface{}) { logDefault(WARN, format, args...) }

// Warnf is an alias for Warn.
func Warnf(format string, args ...interface{}) { logDefault(WARN, format, args...) }

// Error logs an error message.
func Error(format string, args ...interface{}) { logDefault(ERROR, format, args...) }

// Errorf is an alias for Error.
func Errorf(format string, args ...interface{}) { logDefault(ERROR, format, args...) }

// Fatal logs a fatal message and exits the program.
func Fatal(format string, args ...interface{}) { logDefault(FATAL, format, args...) }

// Fatalf is an alias for Fatal.
func Fatalf(format string, args ...interface{}) { logDefault(FATAL, format, args...) }
