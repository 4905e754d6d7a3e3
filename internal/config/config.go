// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads mpqtt settings from a YAML file, MPQTT_* environment
// variables and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MPQTT_MQTT_HOST.
const EnvPrefix = "MPQTT"

// Transport kinds
const (
	TransportSerial    = "serial"
	TransportRaw       = "raw"
	TransportWebSocket = "websocket"
)

// ModePhocos skips QPIRI, which Phocos firmwares do not answer.
const ModePhocos = "phocos"

// InverterConfig selects and tunes the link to the inverter.
type InverterConfig struct {
	Path               string        `mapstructure:"path" yaml:"path"`
	Transport          string        `mapstructure:"transport" yaml:"transport"`
	Baud               int           `mapstructure:"baud" yaml:"baud"`
	URL                string        `mapstructure:"url" yaml:"url"`
	Username           string        `mapstructure:"username" yaml:"username"`
	NoSSLVerify        bool          `mapstructure:"noSslVerify" yaml:"noSslVerify"`
	ReadTimeout        time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	CommandTimeout     time.Duration `mapstructure:"commandTimeout" yaml:"commandTimeout"`
	MinCommandInterval time.Duration `mapstructure:"minCommandInterval" yaml:"minCommandInterval"`
	StrictMarker       bool          `mapstructure:"strictMarker" yaml:"strictMarker"`
}

// MQTTConfig describes the broker connection and topic layout.
type MQTTConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	ClientID string `mapstructure:"clientId" yaml:"clientId"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	QoS      byte   `mapstructure:"qos" yaml:"qos"`
	Retain   bool   `mapstructure:"retain" yaml:"retain"`
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
}

// PollConfig sets the cadence of the polling loop.
type PollConfig struct {
	InnerIterations int           `mapstructure:"innerIterations" yaml:"innerIterations"`
	InnerDelay      time.Duration `mapstructure:"innerDelay" yaml:"innerDelay"`
	OuterDelay      time.Duration `mapstructure:"outerDelay" yaml:"outerDelay"`
}

// LumberjackConfig configures the rolling log file.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize" yaml:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge" yaml:"maxAge"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LoggingConfig sets level, encoder and optional file output.
type LoggingConfig struct {
	Level  string           `mapstructure:"level" yaml:"level"`
	Format string           `mapstructure:"format" yaml:"format"`
	File   LumberjackConfig `mapstructure:"file" yaml:"file"`
}

// HTTPConfig configures the health and metrics server.
type HTTPConfig struct {
	Enable       bool          `mapstructure:"enable" yaml:"enable"`
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
}

// Config is the top-level configuration.
type Config struct {
	Debug    bool           `mapstructure:"debug" yaml:"debug"`
	Mode     string         `mapstructure:"mode" yaml:"mode"`
	Inverter InverterConfig `mapstructure:"inverter" yaml:"inverter"`
	MQTT     MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
	Poll     PollConfig     `mapstructure:"poll" yaml:"poll"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"port":          "inverter.path",
	"baud":          "inverter.baud",
	"transport":     "inverter.transport",
	"url":           "inverter.url",
	"username":      "inverter.username",
	"no-ssl-verify": "inverter.noSslVerify",
	"debug":         "debug",
}

// Load reads the configuration. If path is empty, MPQTT_CONFIG is tried and
// then config.yaml in the working directory or /etc/mpqtt. A missing file is
// not an error. Flags that were set explicitly override everything else.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mpqtt")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "mpqtt-" + uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("mode", "")

	v.SetDefault("inverter.path", "/dev/hidraw0")
	v.SetDefault("inverter.transport", TransportRaw)
	v.SetDefault("inverter.baud", 2400)
	v.SetDefault("inverter.url", "")
	v.SetDefault("inverter.username", "")
	v.SetDefault("inverter.noSslVerify", false)
	v.SetDefault("inverter.readTimeout", "1s")
	v.SetDefault("inverter.commandTimeout", "5s")
	v.SetDefault("inverter.minCommandInterval", "100ms")
	v.SetDefault("inverter.strictMarker", false)

	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.clientId", "")
	v.SetDefault("mqtt.topic", "mpqtt")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.encoding", "json")

	v.SetDefault("poll.innerIterations", 10)
	v.SetDefault("poll.innerDelay", "1s")
	v.SetDefault("poll.outerDelay", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 28)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("http.enable", false)
	v.SetDefault("http.addr", ":9130")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
}

// Validate rejects settings the rest of the program cannot act on.
func (c *Config) Validate() error {
	switch c.Inverter.Transport {
	case TransportSerial, TransportRaw:
		if c.Inverter.Path == "" {
			return fmt.Errorf("inverter.path is required for %s transport", c.Inverter.Transport)
		}
	case TransportWebSocket:
		if c.Inverter.URL == "" {
			return fmt.Errorf("inverter.url is required for websocket transport")
		}
	default:
		return fmt.Errorf("unknown inverter.transport %q (use serial, raw or websocket)", c.Inverter.Transport)
	}

	switch c.MQTT.Encoding {
	case "json", "cbor":
	default:
		return fmt.Errorf("unknown mqtt.encoding %q (use json or cbor)", c.MQTT.Encoding)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Poll.InnerIterations < 1 {
		return fmt.Errorf("poll.innerIterations must be at least 1, got %d", c.Poll.InnerIterations)
	}
	if c.Inverter.CommandTimeout <= 0 {
		return fmt.Errorf("inverter.commandTimeout must be positive")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.MQTT.Password != "" {
		c.MQTT.Password = "********"
	}
	return c
}

// YAML renders the configuration as YAML.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
