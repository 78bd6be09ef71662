package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trades-backtest/internal/config"
)

const serviceName = "trades-backtest"

// NewLogger 根据配置创建 zap.Logger；终端输出带颜色，写文件或 json 编码时不带。
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("解析日志级别失败: %w", err)
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	errorOutputs := cfg.ErrorOutputPaths
	if len(errorOutputs) == 0 {
		errorOutputs = []string{"stderr"}
	}

	fields := make(map[string]interface{}, len(cfg.Fields)+1)
	for k, v := range cfg.Fields {
		fields[k] = v
	}
	fields["service"] = serviceName

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		DisableStacktrace: !cfg.Development,
		Encoding:          cfg.Encoding,
		EncoderConfig:     encoderConfig(cfg.Encoding, outputs),
		OutputPaths:       outputs,
		ErrorOutputPaths:  errorOutputs,
		InitialFields:     fields,
	}

	logger, err := zapCfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("创建日志实例失败: %w", err)
	}
	return logger, nil
}

func encoderConfig(encoding string, outputs []string) zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.NameKey = "logger"
	ec.FunctionKey = zapcore.OmitKey
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if encoding == "console" && terminalOnly(outputs) {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return ec
}

// terminalOnly 仅当所有输出都是标准流时才启用颜色，避免日志文件里出现转义序列。
func terminalOnly(outputs []string) bool {
	for _, out := range outputs {
		if out != "stdout" && out != "stderr" {
			return false
		}
	}
	return true
}
