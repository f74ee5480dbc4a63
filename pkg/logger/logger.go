package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log *zap.Logger
)

func init() {
	// 默认 Nop Logger，防止未 Init 就调用导致 panic
	Log = zap.NewNop()
}

// Init 初始化全局 logger
// production 输出 JSON，其余环境输出彩色 console
func Init(env string) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	base, err := config.Build()
	if err != nil {
		panic(err)
	}

	// 组件持有的是不带 CallerSkip 的 logger，helper 函数多跳一层
	Log = base
	zap.ReplaceGlobals(Log)
}

// Named 返回带组件名的子 logger，供各服务注入使用
func Named(component string) *zap.Logger {
	return Log.Named(component)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Log.Sync()
}

func helper() *zap.Logger {
	return Log.WithOptions(zap.AddCallerSkip(1))
}

func Info(msg string, fields ...zap.Field) {
	helper().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	helper().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	helper().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	helper().Fatal(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	helper().Debug(msg, fields...)
}
