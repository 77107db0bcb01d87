// internal/logger/logger.go
// Structured logging for the relay: zerolog console or JSON output with optional lumberjack file rotation.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"` // debug, info, warn, error, fatal
	LogToFile  bool   `mapstructure:"toFile" yaml:"toFile"`
	LogToJSON  bool   `mapstructure:"json" yaml:"json"`
	FilePath   string `mapstructure:"filePath" yaml:"filePath"`
	MaxSize    int    `mapstructure:"maxSize" yaml:"maxSize"`       // megabytes
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"` // number of backups
	MaxAge     int    `mapstructure:"maxAge" yaml:"maxAge"`         // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`     // compress old log files
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogToFile:  false,
		LogToJSON:  false,
		FilePath:   "relay.log",
		MaxSize:    10, // 10 MB
		MaxBackups: 5,  // 5 backups
		MaxAge:     30, // 30 days
		Compress:   true,
	}
}

func InitLogger(config LogConfig) {
	InitLoggerWithOutput(config, os.Stdout)
}

// InitLoggerWithOutput is InitLogger with the console stream replaced by out.
func InitLoggerWithOutput(config LogConfig, out io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	var writers []io.Writer
	if !config.LogToJSON {
		writers = append(writers, consoleWriter(out))
	} else {
		writers = append(writers, out)
	}
	if config.LogToFile && config.FilePath != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		writers = append(writers, fileWriter)
	}
	var output io.Writer
	if len(writers) > 1 {
		output = io.MultiWriter(writers...)
	} else {
		output = writers[0]
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		NoColor:    false,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			"component",
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"component"},
		FormatLevel: func(i interface{}) string {
			level := strings.ToUpper(fmt.Sprintf("%s", i))
			switch level {
			case "DEBUG":
				return "\033[36m[ " + fmt.Sprintf("%-5s", level) + " ]\033[0m"
			case "INFO":
				return "\033[32m[ " + fmt.Sprintf("%-5s", level) + " ]\033[0m"
			case "WARN":
				return "\033[33m[ " + fmt.Sprintf("%-5s", level) + " ]\033[0m"
			case "ERROR":
				return "\033[31m[ " + fmt.Sprintf("%-5s", level) + " ]\033[0m"
			case "FATAL":
				return "\033[35m[ " + fmt.Sprintf("%-5s", level) + " ]\033[0m"
			default:
				return "\033[37m[ " + fmt.Sprintf("%-5s", level) + " ]\033[0m"
			}
		},
		FormatTimestamp: func(i interface{}) string {
			return fmt.Sprintf("\033[90m%s\033[0m", i)
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("\033[1m%s\033[0m", i)
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("\033[34m%s\033[0m: ", i)
		},
		FormatFieldValue: func(i interface{}) string {
			return fmt.Sprintf("\033[37m%s\033[0m", i)
		},
	}
}

// SetLevel changes the global log level without rebuilding the writers.
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

type Logger struct {
	logger zerolog.Logger
}

func NewLogger(component string) *Logger {
	return &Logger{
		logger: log.With().Str("component", component).Logger(),
	}
}

// Nop returns a Logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// New wraps an existing zerolog.Logger.
func New(l zerolog.Logger) *Logger {
	return &Logger{logger: l}
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{
		logger: ctx.Logger(),
	}
}

func (l *Logger) Debug(msg string)                       { l.logger.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, v ...interface{}) { l.logger.Debug().Msgf(format, v...) }
func (l *Logger) Info(msg string)                        { l.logger.Info().Msg(msg) }
func (l *Logger) Infof(format string, v ...interface{})  { l.logger.Info().Msgf(format, v...) }
func (l *Logger) Warn(msg string)                        { l.logger.Warn().Msg(msg) }
func (l *Logger) Warnf(format string, v ...interface{})  { l.logger.Warn().Msgf(format, v...) }
func (l *Logger) Error(msg string)                       { l.logger.Error().Msg(msg) }
func (l *Logger) Errorf(format string, v ...interface{}) { l.logger.Error().Msgf(format, v...) }
func (l *Logger) Fatal(msg string)                       { l.logger.Fatal().Msg(msg) }
func (l *Logger) Fatalf(format string, v ...interface{}) { l.logger.Fatal().Msgf(format, v...) }

// LogEvent writes a relay lifecycle event. Known events get a colored,
// human-oriented line; anything else is logged with event/vehicle/detail fields.
func (l *Logger) LogEvent(level string, event string, vehicle string, detail string) {
	var message string
	switch event {
	case "vehicle_connected":
		if vehicle != "" {
			message = fmt.Sprintf("\033[96m%s\033[0m connected", vehicle)
		} else {
			message = "Vehicle connected"
		}
		if detail != "" {
			message += " (" + detail + ")"
		}
	case "vehicle_disconnected":
		if vehicle != "" {
			message = fmt.Sprintf("\033[96m%s\033[0m disconnected", vehicle)
		} else {
			message = "Vehicle disconnected"
		}
		if detail != "" {
			message += " (" + detail + ")"
		}
	case "message_relayed":
		if vehicle != "" {
			if detail != "" {
				message = fmt.Sprintf("\033[95m%s\033[0m: \033[97m%s\033[0m", vehicle, detail)
			} else {
				message = fmt.Sprintf("Message from \033[95m%s\033[0m", vehicle)
			}
		} else {
			message = "Message relayed"
		}
	case "malformed_payload", "sender_unresolved":
		evt := l.logger.With().Str("event", event)
		if vehicle != "" {
			evt = evt.Str("vehicle", vehicle)
		}
		if detail != "" {
			evt = evt.Str("detail", detail)
		}
		message = strings.ReplaceAll(event, "_", " ")
		logger := evt.Logger()
		emit(&logger, level, message)
		return
	default:
		evt := l.logger.With().Str("event", event)
		if vehicle != "" {
			evt = evt.Str("vehicle", vehicle)
		}
		if detail != "" {
			evt = evt.Str("detail", detail)
			message = fmt.Sprintf("%s: %s",
				strings.ReplaceAll(event, "_", " "), detail)
		} else {
			message = strings.ReplaceAll(event, "_", " ")
		}
		logger := evt.Logger()
		emit(&logger, level, message)
		return
	}
	emit(&l.logger, level, message)
}

func emit(logger *zerolog.Logger, level string, message string) {
	switch level {
	case "debug":
		logger.Debug().Msg(message)
	case "info":
		logger.Info().Msg(message)
	case "warn":
		logger.Warn().Msg(message)
	case "error":
		logger.Error().Msg(message)
	case "fatal":
		logger.Fatal().Msg(message)
	default:
		logger.Info().Msg(message)
	}
}
