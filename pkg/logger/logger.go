// Package logger builds zap loggers from a small file-oriented
// configuration shared by all commands.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Path string
	// If Path is a file, Mode determines how the log file is managed.
	// FileModeAppend is the default if the value is undefined.
	Mode    FileMode
	Level   zapcore.Level
	DevMode bool
}

// New returns a logger writing JSON entries to the configured sink.
// An empty path silences logging entirely.
func New(conf Config) (*zap.Logger, error) {
	if conf.Path == "" {
		return zap.NewNop(), nil
	}
	w, err := OpenFile(conf.Path, conf.Mode)
	if err != nil {
		return nil, err
	}
	var opts []zap.Option
	if conf.DevMode {
		opts = append(opts, zap.Development())
	}
	core := zapcore.NewCore(jsonEncoder(), w, conf.Level)
	return zap.New(core, opts...), nil
}

func jsonEncoder() zapcore.Encoder {
	conf := zap.NewProductionEncoderConfig()
	conf.CallerKey = ""
	return zapcore.NewJSONEncoder(conf)
}
