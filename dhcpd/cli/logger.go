package cli

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type logConfig struct {
	Level string
	File  string
	Debug bool
}

func logFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "info", "minimum level to log (debug, info, warn, error)")
	fs.String("log-file", "", "log to this file instead of stderr, rotated when it grows")
	fs.Bool("debug", false, "human readable logs at debug level")
}

func logConfigFromViper(v *viper.Viper) logConfig {
	return logConfig{
		Level: v.GetString("log-level"),
		File:  v.GetString("log-file"),
		Debug: v.GetBool("debug"),
	}
}

// newLogger builds the process logger: JSON for machines by default,
// console output at debug level with --debug.
func newLogger(cfg logConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Debug {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if cfg.Level != "" {
			var lvl zapcore.Level
			if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
				return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
			}
			zcfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	if cfg.File == "" {
		return zcfg.Build()
	}

	var enc zapcore.Encoder
	if zcfg.Encoding == "console" {
		enc = zapcore.NewConsoleEncoder(zcfg.EncoderConfig)
	} else {
		enc = zapcore.NewJSONEncoder(zcfg.EncoderConfig)
	}
	out := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	})
	return zap.New(zapcore.NewCore(enc, out, zcfg.Level), zap.AddCaller()), nil
}
