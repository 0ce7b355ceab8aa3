package diag

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger: 结构化 JSON 日志（zap），一行一个事件。
// 字段：level, ts, corr_id, comp, stage(start|finish|warn|error), code, dur_ms, count, file_id, msg, kv。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewLogger 写入 dir（空则 "logs"）下的轮转文件，10 MiB 轮转。
func NewLogger(corrID, level, dir string) *Logger {
	if strings.TrimSpace(dir) == "" {
		dir = "logs"
	}
	sink := NewRotatingFile(dir, 10*1024*1024)
	l := NewLoggerTo(corrID, level, sink)
	l.sink = sink
	return l
}

// NewLoggerTo 写入任意 WriteSyncer；ws 为 nil 时写 stderr。
func NewLoggerTo(corrID, level string, ws zapcore.WriteSyncer) *Logger {
	if ws == nil {
		ws = zapcore.Lock(os.Stderr)
	}
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcRFC3339,
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	core := zapcore.NewCore(enc, ws, zap.NewAtomicLevelAt(parseLevel(level)))
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

// NopLogger 丢弃全部事件。
func NopLogger() *Logger { return &Logger{z: zap.NewNop()} }

func utcRFC3339(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// event 组装公共字段；空值字段省略。
type event struct {
	comp, stage, code, fileID string
	dur                       time.Duration
	count                     int64
	kv                        map[string]string
}

func (l *Logger) log(lv zapcore.Level, msg string, ev event) {
	if l == nil || l.z == nil {
		return
	}
	ce := l.z.Check(lv, msg)
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, 7)
	fields = append(fields, zap.String("comp", ev.comp), zap.String("stage", ev.stage))
	if ev.code != "" {
		fields = append(fields, zap.String("code", ev.code))
	}
	if ev.dur > 0 {
		fields = append(fields, zap.Int64("dur_ms", ev.dur.Milliseconds()))
	}
	if ev.count != 0 {
		fields = append(fields, zap.Int64("count", ev.count))
	}
	if ev.fileID != "" {
		fields = append(fields, zap.String("file_id", ev.fileID))
	}
	if len(ev.kv) > 0 {
		fields = append(fields, zap.Any("kv", ev.kv))
	}
	ce.Write(fields...)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(zapcore.InfoLevel, msg, event{comp: comp, stage: "start"})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 file_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID string) *Timer {
	return l.StartWithKV(comp, msg, fileID, nil)
}

// StartWithKV 记录带 file_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID string, kv map[string]string) *Timer {
	l.log(zapcore.InfoLevel, msg, event{comp: comp, stage: "start", fileID: fileID, kv: kv})
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", nil)
}

// ErrorWith 支持 file_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID string) {
	l.ErrorWithKV(comp, code, msg, durSince, fileID, nil)
}

// ErrorWithKV 支持附带键值对（例如出错行号、丢弃字节数）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID string, kv map[string]string) {
	var dur time.Duration
	if durSince != nil {
		dur = time.Since(*durSince)
	}
	l.log(zapcore.ErrorLevel, msg, event{comp: comp, stage: "error", code: code, dur: dur, fileID: fileID, kv: kv})
}

// Warn 记录可继续运行的异常（如截断输入被丢弃的尾部）。
func (l *Logger) Warn(comp, msg, fileID string, kv map[string]string) {
	l.log(zapcore.WarnLevel, msg, event{comp: comp, stage: "warn", fileID: fileID, kv: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, msg, event{comp: comp, stage: "finish", dur: time.Since(start), count: count})
}

// InfoKV 记录一条不属于 start/finish 的 info 事件（如运行结束时的指标快照）。
func (l *Logger) InfoKV(comp, msg string, kv map[string]string) {
	l.log(zapcore.InfoLevel, msg, event{comp: comp, stage: "report", kv: kv})
}

// DebugStart 输出调试级别的 start 类事件（level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID string, kv map[string]string) {
	l.log(zapcore.DebugLevel, msg, event{comp: comp, stage: "start", fileID: fileID, kv: kv})
}

// Close 刷出缓冲并关闭文件句柄。
func (l *Logger) Close() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(zapcore.InfoLevel, msg, event{comp: t.comp, stage: "finish", dur: time.Since(t.t0), count: count, fileID: t.fileID})
}

// Since 返回起点，供 ErrorWith 计算耗时。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}
