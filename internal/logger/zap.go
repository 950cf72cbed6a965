package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap's SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

// FormatEnv selects the encoder: "json" for log shippers, anything else is
// the console format read by journald.
const FormatEnv = "MOTHPI_LOG_FORMAT"

const defaultZapLevel = zapcore.InfoLevel

func toZapLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel, "warning":
		return zapcore.WarnLevel
	case ErrorLevel, "critical":
		return zapcore.ErrorLevel
	default:
		return defaultZapLevel
	}
}

// newCore builds the station core. The console form drops timestamps since
// journald stamps every line; the JSON form keeps them.
func newCore(format string, level zapcore.Level, out zapcore.WriteSyncer) zapcore.Core {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(format, "json") {
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg.TimeKey = ""
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewCore(enc, zapcore.Lock(out), zap.NewAtomicLevelAt(level))
}

func newZapLogger(levelStr string) *Logger {
	core := newCore(os.Getenv(FormatEnv), toZapLevel(levelStr), zapcore.AddSync(os.Stdout))
	return &Logger{SugaredLogger: zap.New(core, zap.AddCaller()).Sugar()}
}
