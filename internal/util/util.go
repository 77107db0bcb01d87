// internal/util/util.go
// Configuration loading for the relay: defaults, optional config file, V2V_* environment overrides.
package util

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/erilali/v2vrelay/internal/logger"
	"github.com/fsnotify/fsnotify"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	configName = "relay"
	envPrefix  = "V2V"
)

// ErrRejectedLabels marks a usable Config from which invalid reserved labels
// were removed.
var ErrRejectedLabels = errors.New("invalid reserved labels ignored")

type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	MaxMessageSize  int64         `mapstructure:"maxMessageSize" yaml:"maxMessageSize"`
	SendBuffer      int           `mapstructure:"sendBuffer" yaml:"sendBuffer"`
	PingPeriod      time.Duration `mapstructure:"pingPeriod" yaml:"pingPeriod"`
	PongWait        time.Duration `mapstructure:"pongWait" yaml:"pongWait"`
	WriteWait       time.Duration `mapstructure:"writeWait" yaml:"writeWait"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout" yaml:"shutdownTimeout"`
}

// MarshalYAML renders durations as strings ("20s") instead of nanoseconds.
func (s ServerConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Port            int    `yaml:"port"`
		MaxMessageSize  int64  `yaml:"maxMessageSize"`
		SendBuffer      int    `yaml:"sendBuffer"`
		PingPeriod      string `yaml:"pingPeriod"`
		PongWait        string `yaml:"pongWait"`
		WriteWait       string `yaml:"writeWait"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
	}{
		Port:            s.Port,
		MaxMessageSize:  s.MaxMessageSize,
		SendBuffer:      s.SendBuffer,
		PingPeriod:      s.PingPeriod.String(),
		PongWait:        s.PongWait.String(),
		WriteWait:       s.WriteWait.String(),
		ShutdownTimeout: s.ShutdownTimeout.String(),
	}, nil
}

type RelayConfig struct {
	ReservedLabels []string `mapstructure:"reservedLabels" yaml:"reservedLabels"`
	LabelPrefix    string   `mapstructure:"labelPrefix" yaml:"labelPrefix"`
	FallbackSender string   `mapstructure:"fallbackSender" yaml:"fallbackSender"`
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	URL           string `mapstructure:"url" yaml:"url"`
	SubjectPrefix string `mapstructure:"subjectPrefix" yaml:"subjectPrefix"`
}

// Config is the full runtime configuration of one relay process.
type Config struct {
	Server ServerConfig     `mapstructure:"server" yaml:"server"`
	Relay  RelayConfig      `mapstructure:"relay" yaml:"relay"`
	NATS   NATSConfig       `mapstructure:"nats" yaml:"nats"`
	Log    logger.LogConfig `mapstructure:"log" yaml:"log"`
}

func DefaultConfig() Config {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MaxMessageSize:  1 << 20,
			SendBuffer:      64,
			PingPeriod:      20 * time.Second,
			PongWait:        30 * time.Second,
			WriteWait:       10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Relay: RelayConfig{
			ReservedLabels: []string{"Vehicle A", "Vehicle B"},
			LabelPrefix:    "Vehicle",
			FallbackSender: "Unknown Vehicle",
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           natsURL,
			SubjectPrefix: "v2v",
		},
		Log: logger.DefaultLogConfig(),
	}
}

// SetDefaults registers every key with its default so that environment
// overrides and Unmarshal see the full key set.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.maxMessageSize", d.Server.MaxMessageSize)
	v.SetDefault("server.sendBuffer", d.Server.SendBuffer)
	v.SetDefault("server.pingPeriod", d.Server.PingPeriod)
	v.SetDefault("server.pongWait", d.Server.PongWait)
	v.SetDefault("server.writeWait", d.Server.WriteWait)
	v.SetDefault("server.shutdownTimeout", d.Server.ShutdownTimeout)
	v.SetDefault("relay.reservedLabels", d.Relay.ReservedLabels)
	v.SetDefault("relay.labelPrefix", d.Relay.LabelPrefix)
	v.SetDefault("relay.fallbackSender", d.Relay.FallbackSender)
	v.SetDefault("nats.enabled", d.NATS.Enabled)
	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.subjectPrefix", d.NATS.SubjectPrefix)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.LogToJSON)
	v.SetDefault("log.toFile", d.Log.LogToFile)
	v.SetDefault("log.filePath", d.Log.FilePath)
	v.SetDefault("log.maxSize", d.Log.MaxSize)
	v.SetDefault("log.maxBackups", d.Log.MaxBackups)
	v.SetDefault("log.maxAge", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)
}

// LoadConfig loads configuration into the global viper instance, which is
// where the CLI binds its flags.
func LoadConfig(filePath string) (Config, error) {
	return LoadConfigFrom(viper.GetViper(), filePath)
}

// LoadConfigFrom reads filePath, or searches ./relay.* and
// $HOME/.config/v2vrelay/relay.* when it is empty. A missing file is not an
// error; defaults apply.
func LoadConfigFrom(v *viper.Viper, filePath string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filePath != "" {
		v.SetConfigFile(filePath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if dir, err := ConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), os.IsNotExist(err):
		default:
			return DefaultConfig(), errors.Wrap(err, "read config")
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return cfg, err
	}
	return Sanitize(cfg)
}

// ConfigDir is the per-user configuration directory.
func ConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "locate home directory")
	}
	return filepath.Join(home, ".config", "v2vrelay"), nil
}

func unmarshal(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DefaultConfig(), errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// Sanitize replaces out-of-range values with defaults. Invalid reserved
// labels are dropped and reported in the returned error; the returned
// Config is usable either way.
func Sanitize(cfg Config) (Config, error) {
	d := DefaultConfig()

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Server.MaxMessageSize <= 0 {
		cfg.Server.MaxMessageSize = d.Server.MaxMessageSize
	}
	if cfg.Server.SendBuffer <= 0 {
		cfg.Server.SendBuffer = d.Server.SendBuffer
	}
	if cfg.Server.PongWait <= 0 {
		cfg.Server.PongWait = d.Server.PongWait
	}
	if cfg.Server.PingPeriod <= 0 || cfg.Server.PingPeriod >= cfg.Server.PongWait {
		cfg.Server.PingPeriod = (cfg.Server.PongWait * 9) / 10
	}
	if cfg.Server.WriteWait <= 0 {
		cfg.Server.WriteWait = d.Server.WriteWait
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	if strings.TrimSpace(cfg.Relay.LabelPrefix) == "" {
		cfg.Relay.LabelPrefix = d.Relay.LabelPrefix
	}
	if strings.TrimSpace(cfg.Relay.FallbackSender) == "" {
		cfg.Relay.FallbackSender = d.Relay.FallbackSender
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = d.NATS.SubjectPrefix
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = d.NATS.URL
	}

	var rejected []string
	labels := make([]string, 0, len(cfg.Relay.ReservedLabels))
	for _, l := range cfg.Relay.ReservedLabels {
		l = strings.TrimSpace(l)
		if !validateLabel(l) {
			rejected = append(rejected, l)
			continue
		}
		labels = append(labels, l)
	}
	if len(labels) == 0 {
		labels = d.Relay.ReservedLabels
	}
	cfg.Relay.ReservedLabels = labels

	if len(rejected) > 0 {
		return cfg, errors.Wrapf(ErrRejectedLabels, "%q", rejected)
	}
	return cfg, nil
}

// validateLabel checks a display label: 1-32 characters, letters, digits,
// space, underscore and hyphen.
func validateLabel(label string) bool {
	if len(label) < 1 || len(label) > 32 {
		return false
	}

	for _, char := range label {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == ' ' || char == '_' || char == '-') {
			return false
		}
	}

	return true
}

// WatchConfig re-decodes the configuration whenever the file in use changes
// and passes it to onChange. It does nothing when no file was loaded.
func WatchConfig(v *viper.Viper, log *logger.Logger, onChange func(Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshal(v)
		if err != nil {
			log.Errorf("Config reload from %s failed, keeping previous config: %v", e.Name, err)
			return
		}
		if cfg, err = Sanitize(cfg); err != nil {
			log.Warnf("Config reload from %s: %v", e.Name, err)
		}
		log.Infof("Config reloaded from %s", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
}
