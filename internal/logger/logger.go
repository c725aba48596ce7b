// Package logger is the process-wide structured logger.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Key  string
	Data interface{}
}

// Logger is replaced by Init. Until then nothing is written.
var Logger = zap.NewNop()

// Init builds the production logger, or a development one when debug is set.
func Init(debug bool) error {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Logger = l
	return nil
}

// Sync flushes buffered entries. Call it before exit.
func Sync() {
	_ = Logger.Sync()
}

func fields(payload []Options) []zapcore.Field {
	zapFields := make([]zapcore.Field, 0, len(payload))
	for _, data := range payload {
		zapFields = append(zapFields, zap.Any(data.Key, data.Data))
	}
	return zapFields
}

func Debug(msg string, payload ...Options) {
	Logger.Debug(msg, fields(payload)...)
}

// This logs info level messages.
func Info(msg string, payload ...Options) {
	Logger.Info(msg, fields(payload)...)
}

// This logs warning messages.
func Warning(msg string, payload ...Options) {
	Logger.Warn(msg, fields(payload)...)
}

// This logs error messages.
// describe the incident in msg and pass the error through logger options
// with key error
func Error(msg string, payload ...Options) {
	Logger.Error(msg, fields(payload)...)
}
