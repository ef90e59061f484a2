package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

const (
	maxFileSizeMB  = 100
	maxFileBackups = 3
	maxFileAgeDays = 28
)

// Logger is the process-wide logger. Every logger derived from it shares the
// same level, so changing the level affects all components.
type Logger struct {
	*zap.SugaredLogger
	level zap.AtomicLevel
}

func New(logLevel, logFile string) (*Logger, error) {
	if logFile != "" {
		logDir := filepath.Dir(logFile)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	consoleWriter := zapcore.Lock(zapcore.AddSync(os.Stdout))

	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, consoleWriter, level)}
	if logFile != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    maxFileSizeMB,
			MaxBackups: maxFileBackups,
			MaxAge:     maxFileAgeDays,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{SugaredLogger: zapLogger.Sugar(), level: level}, nil
}

// SetLevel changes the level of this logger and of every logger derived from it.
func (l *Logger) SetLevel(logLevel string) error {
	if err := l.level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level [%s]: %w", logLevel, err)
	}
	return nil
}

func (l *Logger) Level() string {
	return l.level.Level().String()
}

// Named returns a logger for one component, e.g. "backup" or "monitor".
func (l *Logger) Named(component string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(component), level: l.level}
}

// ForOperation returns a logger tagging every entry with the operation id.
func (l *Logger) ForOperation(op domain.OperationID) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With("operation", op.String()), level: l.level}
}

func (l *Logger) Close() {
	_ = l.Sync()
}
