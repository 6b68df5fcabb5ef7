package logging

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	cfgpkg "github.com/lss-net/lss/internal/config"
)

// InitLogger 初始化 zap 日志器（支持 lumberjack 滚动文件）。
// app/env/network_id 作为初始字段挂在每条日志上：一台主机可能同时跑
// 多个网络的基站进程，聚合端靠这三个字段切分。
func InitLogger(cfg cfgpkg.LoggingConfig, app cfgpkg.AppConfig, networkID uint16) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn", "warning":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	// 文件输出（带滚动）
	lj := &lumberjack.Logger{
		Filename:   cfg.File.Filename,
		MaxSize:    cfg.File.MaxSizeMB,
		MaxBackups: cfg.File.MaxBackups,
		MaxAge:     cfg.File.MaxAgeDays,
		Compress:   cfg.File.Compress,
	}

	// 控制台 + 文件双写
	ws := zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout), zapcore.AddSync(lj))
	core := zapcore.NewCore(encoder, ws, level)

	var initial []zap.Field
	if app.Name != "" {
		initial = append(initial, zap.String("app", app.Name))
	}
	if app.Env != "" {
		initial = append(initial, zap.String("env", app.Env))
	}
	initial = append(initial, zap.Uint16("network_id", networkID))

	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.Fields(initial...))
	return logger, nil
}

// ForNode 返回绑定了 node_id 字段的子日志器。
// 与节点相关的每条日志都过这里，保证字段名全局一致，
// 仪表盘才能按节点过滤到完整的命令/遥测轨迹。
func ForNode(logger *zap.Logger, nodeID uint8) *zap.Logger {
	return logger.With(zap.Uint8("node_id", nodeID))
}
