// Package logging builds the *zap.Logger every pipeline component is
// threaded with, following cmd/snapshots/main.go's setupLogger shape:
// console output always on, an optional rotated file core layered in when a
// log directory is configured.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options mirrors setupLogger's two inputs: a verbosity and an optional
// directory for rotated file output.
type Options struct {
	// Dir, if non-empty, is the directory rotated log files are written
	// under, matching setupLogger's dataDir+"/logs" convention.
	Dir string

	// Debug enables debug-level console output; otherwise info level,
	// matching setupLogger's LvlError/LvlInfo split.
	Debug bool
}

// New builds a *zap.Logger per Options. Errors only from creating Dir.
func New(opts Options) (*zap.Logger, error) {
	consoleLevel := zapcore.InfoLevel
	if opts.Debug {
		consoleLevel = zapcore.DebugLevel
	}

	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), consoleLevel),
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, err
		}
		fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		fileSink := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "lo-migrate.log"),
			MaxSize:    100, // MiB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(fileSink), zapcore.InfoLevel))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}
