package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logFolder = "logs"

var _ zapcore.WriteSyncer = &ZaapLogWriter{}

// ZaapLogWriter writes every entry to the per-run log file and to any extra loggers.
type ZaapLogWriter struct {
	mutex        sync.Mutex
	logFile      *os.File
	extraLoggers []func(string)
}

func NewZaapLogger(logLevel string) (*zap.Logger, *ZaapLogWriter, error) {
	level, err := getLogLevel(logLevel)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(logFolder, 0o755); err != nil {
		return nil, nil, errors.Wrap(err, "failed to create log folder")
	}
	files, err := os.ReadDir(logFolder)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read log folder")
	}

	numFilesInFolder := 0
	for _, file := range files {
		if !file.IsDir() {
			numFilesInFolder++
		}
	}
	nextNum := numFilesInFolder + 1

	logFileName := fmt.Sprintf("zaap-%d-%d.log", nextNum, time.Now().Unix())
	logFile, err := os.OpenFile(filepath.Join(logFolder, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open log file")
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	logWriter := &ZaapLogWriter{
		logFile:      logFile,
		extraLoggers: make([]func(string), 0),
	}

	zapCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(logWriter),
		level,
	)

	return zap.New(zapCore), logWriter, nil
}

func (w *ZaapLogWriter) AddExtraLogger(logger func(string)) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.extraLoggers = append(w.extraLoggers, logger)
}

// Write implements io.Writer interface
func (w *ZaapLogWriter) Write(p []byte) (n int, err error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	for _, logger := range w.extraLoggers {
		logger(string(p))
	}

	if _, err := w.logFile.Write(p); err != nil {
		return 0, err
	}

	return len(p), nil
}

// Sync implements zapcore.WriteSyncer interface
func (w *ZaapLogWriter) Sync() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.logFile.Sync()
}

func (w *ZaapLogWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.logFile.Close()
}

func getLogLevel(logLevel string) (zap.AtomicLevel, error) {
	switch logLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel), nil
	case "info":
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel), nil
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel), nil
	default:
		return zap.AtomicLevel{}, errors.Errorf("invalid log level: %s", logLevel)
	}
}
