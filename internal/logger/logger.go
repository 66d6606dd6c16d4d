// Package logger builds the process-wide *zap.Logger, backed by a rotating
// file under <rootDir>/log via lumberjack, and optionally teed to stdout for
// interactive/local runs.
package logger

import (
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger writing JSON lines to <rootDir>/log/routemgr.log,
// rotated by lumberjack (100MB/3 backups/28 days, compressed). When tee is
// true, a second core also writes human-readable lines to stdout — useful
// for local development and for `go run` sessions.
func New(rootDir string, tee bool) (*zap.Logger, error) {
	logPath := filepath.Join(rootDir, "log", "routemgr.log")

	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	fileEncoder := zap.NewProductionEncoderConfig()
	fileEncoder.TimeKey = "ts"
	fileEncoder.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoder), zapcore.AddSync(rotator), zap.InfoLevel),
	}

	if tee {
		stdoutEncoder := zap.NewDevelopmentEncoderConfig()
		stdoutEncoder.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(stdoutEncoder), zapcore.Lock(zapcore.AddSync(os.Stdout)), zap.DebugLevel))
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	log.Info("logger online", zap.Bool("tee", tee), zap.String("path", logPath))

	zap.ReplaceGlobals(log)
	return log, nil
}
