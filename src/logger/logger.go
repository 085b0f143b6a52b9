package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quote-book/src/config"
)

var Logger zerolog.Logger
var logFile *os.File

// InitLogger builds the process logger from cfg and installs it as the
// zerolog global. Unknown levels fall back to info.
func InitLogger(cfg config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	CloseLogger()
	if cfg.File != "" && cfg.File != "none" && cfg.File != "disabled" {
		logFile, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Error().Err(err).Str("log_file", cfg.File).Msg("Failed to open log file, using stdout only")
			logFile = nil
		}
	}

	var writers []io.Writer
	if cfg.Format == "pretty" {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, os.Stdout)
	}
	if logFile != nil {
		writers = append(writers, logFile)
	}

	Logger = zerolog.New(io.MultiWriter(writers...)).With().
		Timestamp().
		Logger()
	log.Logger = Logger

	event := Logger.Info().Str("log_level", level.String())
	if logFile != nil {
		event.Str("log_file", cfg.File).Msg("Logger initialized - writing to console and file")
	} else {
		event.Msg("Logger initialized - writing to console only")
	}
	return Logger
}

func CloseLogger() {
	if logFile != nil {
		_ = logFile.Sync()
		_ = logFile.Close()
		logFile = nil
	}
}

func GetLogger() zerolog.Logger {
	return Logger
}
