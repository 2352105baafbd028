package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SerialSuppressedLevel is the level the serial channel sits at while serial
// logging is off. Only fatal entries pass, which the serial channel never emits.
const SerialSuppressedLevel = zapcore.FatalLevel

var (
	serialMu     sync.Mutex
	serialLevel  = zap.NewAtomicLevelAt(SerialSuppressedLevel)
	serialLogger *zap.Logger
	serialFile   *os.File
)

// InitializeSerial opens the serial log file and builds the serial channel.
// The channel keeps whatever level SetSerialLogging last set.
func InitializeSerial(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create serial log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open serial log: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(file), serialLevel)

	serialMu.Lock()
	defer serialMu.Unlock()
	if serialLogger != nil {
		_ = serialLogger.Sync()
	}
	if serialFile != nil {
		_ = serialFile.Close()
	}
	serialLogger = zap.New(core).Named("serial")
	serialFile = file
	return nil
}

// Serial returns the serial channel logger. Before InitializeSerial it is a
// no-op logger.
func Serial() *zap.Logger {
	serialMu.Lock()
	defer serialMu.Unlock()
	if serialLogger == nil {
		return zap.NewNop()
	}
	return serialLogger
}

// SetSerialLogging switches the serial channel between debug and suppressed
func SetSerialLogging(enabled bool) {
	if enabled {
		serialLevel.SetLevel(zapcore.DebugLevel)
		Info("Serial logging enabled")
		return
	}
	serialLevel.SetLevel(SerialSuppressedLevel)
	Info("Serial logging disabled")
}

// SerialLoggingEnabled reports whether the serial channel currently records debug output
func SerialLoggingEnabled() bool {
	return serialLevel.Enabled(zapcore.DebugLevel)
}

// SerialLevel returns the current level of the serial channel
func SerialLevel() zapcore.Level {
	return serialLevel.Level()
}

func syncSerial() {
	serialMu.Lock()
	defer serialMu.Unlock()
	if serialLogger != nil {
		_ = serialLogger.Sync()
	}
}
