package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config represents the configuration for the logger
type Config struct {
	// Log level: debug, info, warn, error
	Level string
	// Log file path, empty disables file output
	FilePath string
	// Maximum log file size in MB before rotation
	MaxSize int
	// Maximum number of rotated files kept
	MaxBackups int
	// Whether to log to console
	Console bool
}

// DefaultConfig returns the console-only configuration used until
// InitFromConfig is called.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSize:    10,
		MaxBackups: 5,
		Console:    true,
	}
}

var (
	mu      sync.RWMutex
	base    *zap.Logger
	sugar   *zap.SugaredLogger
	logFile *rotatingFile
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	l, f, err := build(DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize default logger: %v\n", err)
		l, f = zap.NewNop(), nil
	}
	install(l, f)
}

// InitFromConfig replaces the global logger.
func InitFromConfig(lvl, filePath string, maxSize, maxBackups int, console bool) error {
	l, f, err := build(Config{
		Level:      lvl,
		FilePath:   filePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Console:    console,
	})
	if err != nil {
		return err
	}

	mu.Lock()
	old := logFile
	mu.Unlock()

	install(l, f)
	if old != nil {
		old.Close()
	}
	return nil
}

// SetLevel changes the level of the running logger without rebuilding it.
func SetLevel(lvl string) error {
	parsed, err := ParseLogLevel(lvl)
	if err != nil {
		return err
	}
	level.SetLevel(parsed)
	return nil
}

// ParseLogLevel parses log level string
func ParseLogLevel(lvl string) (zapcore.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(lvl)) {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "INFO", "":
		return zapcore.InfoLevel, nil
	case "WARN", "WARNING":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s, using default level INFO", lvl)
	}
}

func build(cfg Config) (*zap.Logger, *rotatingFile, error) {
	parsed, err := ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	level.SetLevel(parsed)

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	var cores []zapcore.Core
	if cfg.Console {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), level))
	}

	var rf *rotatingFile
	if cfg.FilePath != "" {
		rf, err = openRotatingFile(cfg.FilePath, cfg.MaxSize, cfg.MaxBackups)
		if err != nil {
			return nil, nil, err
		}
		fileCfg := encCfg
		fileCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(fileCfg), rf, level))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil, nil
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)), rf, nil
}

func install(l *zap.Logger, f *rotatingFile) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	sugar = l.Sugar()
	logFile = f
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Zap returns the underlying structured logger for components that log fields.
func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithOptions(zap.AddCallerSkip(-1))
}

// Debug logs debug level messages
func Debug(format string, args ...interface{}) {
	current().Debugf(format, args...)
}

// Info logs info level messages
func Info(format string, args ...interface{}) {
	current().Infof(format, args...)
}

// Warn logs warning level messages
func Warn(format string, args ...interface{}) {
	current().Warnf(format, args...)
}

// Error logs error level messages
func Error(format string, args ...interface{}) {
	current().Errorf(format, args...)
}

// Close flushes and closes the logger
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	_ = base.Sync()
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}
