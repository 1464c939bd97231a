package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const simpleTimeFormat = "02-01-2006 15:04:05"

// FileConfig describes a size-rotated log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New constructs a zerolog logger according to the runtime environment.
// Development environments receive human readable console logs while other
// environments emit JSON for easy ingestion.
func New(env, level string, writers ...io.Writer) (*zerolog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = simpleTimeFormat
	zerolog.DurationFieldUnit = time.Millisecond

	var output io.Writer
	if len(writers) > 0 {
		output = io.MultiWriter(writers...)
	} else {
		output = Console(env)
	}

	logger := zerolog.New(output).With().Timestamp().Logger().Level(lvl)
	return &logger, nil
}

// Console returns the stdout writer for env.
func Console(env string) io.Writer {
	if strings.EqualFold(env, "development") || strings.EqualFold(env, "dev") {
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: simpleTimeFormat}
		cw.FieldsExclude = []string{zerolog.TimestampFieldName}
		return cw
	}
	return os.Stdout
}

// FileWriter returns a rotating file writer, or nil when no path is set. The
// caller owns closing it.
func FileWriter(cfg FileConfig) io.WriteCloser {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}

// NewWithFile builds a logger writing to the console and, when configured, a
// rotating file. The returned closer is never nil.
func NewWithFile(env, level string, file FileConfig) (*zerolog.Logger, io.Closer, error) {
	writers := []io.Writer{Console(env)}
	var closer io.Closer = nopCloser{}
	if fw := FileWriter(file); fw != nil {
		writers = append(writers, fw)
		closer = fw
	}
	log, err := New(env, level, writers...)
	if err != nil {
		return nil, nil, err
	}
	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(level string) (zerolog.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		level = zerolog.InfoLevel.String()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, err
	}
	return lvl, nil
}
