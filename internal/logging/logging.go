// Package logging provides structured logging using zerolog.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// Level re-exports zerolog's level type for callers that don't want to
// import zerolog directly.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config configures the global logger.
type Config struct {
	// Level is the minimum level to emit.
	Level Level
	// Output is where console logs are written. Defaults to os.Stderr.
	Output io.Writer
	// Pretty enables human-readable console output instead of JSON.
	Pretty bool
	// LogToFile additionally writes a timestamped log file under LogDir.
	LogToFile bool
	// LogDir is the directory for the timestamped log file. Defaults to
	// os.TempDir().
	LogDir string
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  InfoLevel,
		Output: os.Stderr,
		LogDir: os.TempDir(),
	}
}

var logFile *os.File

// Init (re)initializes the global logger.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.LogDir == "" {
		cfg.LogDir = os.TempDir()
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339}
	}

	writers := []io.Writer{out}

	if cfg.LogToFile {
		name := "happyclawd-" + time.Now().Format("20060102-150405") + ".log"
		f, err := os.Create(filepath.Join(cfg.LogDir, name))
		if err == nil {
			logFile = f
			writers = append(writers, f)
		}
	}

	var multi io.Writer = out
	if len(writers) > 1 {
		multi = zerolog.MultiLevelWriter(writers...)
	}

	logger = zerolog.New(multi).With().Timestamp().Logger().Level(cfg.Level)
}

// Logger returns the global logger.
func Logger() *zerolog.Logger {
	return &logger
}

// ParseLevel parses a level name (case-insensitive), defaulting to Info on
// an unrecognized value.
func ParseLevel(s string) Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return InfoLevel
	}
	return lvl
}

// GetLogFilePath returns the path of the current file log, if LogToFile was
// enabled, or "" otherwise.
func GetLogFilePath() string {
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// Close closes the file log handle, if any.
func Close() error {
	if logFile == nil {
		return nil
	}
	return logFile.Close()
}
