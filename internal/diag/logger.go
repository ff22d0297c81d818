package diag

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为结构化事件日志器：zap JSON 编码，默认写入轮转文件。
// nil *Logger 可安全调用（全部 no-op）。
type Logger struct {
	corrID string
	z      *zap.Logger
	sink   *RotatingFile
}

// LogOptions: 日志输出位置与轮转阈值。
type LogOptions struct {
	Level    string
	Dir      string
	MaxBytes int64
}

// NewLogger 通过配置的 level 初始化，日志写入 logs/ 目录，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	return NewLoggerWith(corrID, LogOptions{Level: level})
}

// NewLoggerWith 按选项构造；Dir 为空时使用 "logs"。
func NewLoggerWith(corrID string, o LogOptions) *Logger {
	dir := strings.TrimSpace(o.Dir)
	if dir == "" {
		dir = "logs"
	}
	sink := NewRotatingFile(dir, o.MaxBytes)
	l := NewLoggerTo(corrID, o.Level, sink)
	l.sink = sink
	return l
}

// NewLoggerTo 将日志写到任意 WriteSyncer（测试/STDERR 场景）。
func NewLoggerTo(corrID, level string, ws zapcore.WriteSyncer) *Logger {
	if ws == nil {
		ws = zapcore.Lock(os.Stderr)
	}
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, parseLevel(strings.TrimSpace(level)))
	z := zap.New(core).With(zap.String("corr_id", corrID))
	return &Logger{corrID: corrID, z: z}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// CorrID 返回关联 ID。
func (l *Logger) CorrID() string {
	if l == nil {
		return ""
	}
	return l.corrID
}

// Sync 刷新并关闭文件 sink。
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	err := l.z.Sync()
	if l.sink != nil {
		if cerr := l.sink.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// event 组装标准字段：comp/stage/code/dur_ms/count/source/row/kv。
func event(comp, stage, code string, dur, count int64, source, row string, kv map[string]string) []zap.Field {
	fs := make([]zap.Field, 0, 8)
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	if code != "" {
		fs = append(fs, zap.String("code", code))
	}
	if dur > 0 {
		fs = append(fs, zap.Int64("dur_ms", dur))
	}
	if count > 0 {
		fs = append(fs, zap.Int64("count", count))
	}
	if source != "" {
		fs = append(fs, zap.String("source", source))
	}
	if row != "" {
		fs = append(fs, zap.String("row", row))
	}
	if len(kv) > 0 {
		fs = append(fs, zap.Any("kv", kv))
	}
	return fs
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	if l == nil {
		return nil
	}
	l.z.Info(msg, event(comp, "start", "", 0, 0, "", "", nil)...)
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 source/row 的 start。
func (l *Logger) StartWith(comp, msg, source, row string) *Timer {
	if l == nil {
		return nil
	}
	l.z.Info(msg, event(comp, "start", "", 0, 0, source, row, nil)...)
	return &Timer{l: l, comp: comp, source: source, row: row, t0: time.Now()}
}

// StartWithKV 记录带 source/row 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, source, row string, kv map[string]string) *Timer {
	if l == nil {
		return nil
	}
	l.z.Info(msg, event(comp, "start", "", 0, 0, source, row, kv)...)
	return &Timer{l: l, comp: comp, source: source, row: row, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", "", nil)
}

// ErrorWith 支持 source/row。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, source, row string) {
	l.ErrorWithKV(comp, code, msg, durSince, source, row, nil)
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, source, row string, kv map[string]string) {
	if l == nil {
		return
	}
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.z.Error(msg, event(comp, "error", code, dur, 0, source, row, kv)...)
}

// WarnWithKV 记录可恢复的异常（例如单次尝试失败、即将重试）。
func (l *Logger) WarnWithKV(comp, code, msg, source, row string, kv map[string]string) {
	if l == nil {
		return
	}
	l.z.Warn(msg, event(comp, "retry", code, 0, 0, source, row, kv)...)
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	if l == nil {
		return
	}
	l.z.Info(msg, event(comp, "finish", "", time.Since(start).Milliseconds(), count, "", "", nil)...)
}

// DebugStart 输出调试级别的“start”类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, source, row string, kv map[string]string) {
	if l == nil {
		return
	}
	l.z.Debug(msg, event(comp, "start", "", 0, 0, source, row, kv)...)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	source string
	row    string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil || t.l.z == nil {
		return
	}
	dur := time.Since(t.t0).Milliseconds()
	t.l.z.Info(msg, event(t.comp, "finish", "", dur, count, t.source, t.row, nil)...)
	ObserveDuration(t.comp, "finish", dur)
}
