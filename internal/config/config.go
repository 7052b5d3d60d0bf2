// Package config loads switch configuration from defaults, an optional file
// and the environment.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Framing modes for the terminal listeners.
const (
	FramingRead    = "read"
	FramingNewline = "newline"
	FramingLength  = "length"
	FramingLength4 = "length4"
	FramingASCII4  = "ascii4"
	FramingHex4    = "hex4"
)

// Config is the complete switch configuration.
type Config struct {
	App   AppConfig   `mapstructure:"app"`
	DB    DBConfig    `mapstructure:"db"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	Log   LogConfig   `mapstructure:"log"`
}

type AppConfig struct {
	Host            string        `mapstructure:"host"`
	TCPPort         int           `mapstructure:"tcp_port"`
	TLSTCPPort      int           `mapstructure:"tls_tcp_port"`
	TLSCertFile     string        `mapstructure:"tls_cert_file"`
	TLSKeyFile      string        `mapstructure:"tls_key_file"`
	Framing         string        `mapstructure:"framing"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	MaxConnections  int           `mapstructure:"max_connections"`
	CurrencyCode    string        `mapstructure:"currency_code"`
	MockSuccessRate float64       `mapstructure:"mock_success_rate"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	// PackagerFile is an optional JSON field table overriding the default
	// data element formats.
	PackagerFile string `mapstructure:"packager_file"`
}

type DBConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	Name           string `mapstructure:"name"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int32  `mapstructure:"max_connections"`
	MinConnections int32  `mapstructure:"min_connections"`
	// Migrations is a golang-migrate source URL. Empty skips migrations.
	Migrations string `mapstructure:"migrations"`
}

type KafkaConfig struct {
	BootstrapServers string         `mapstructure:"bootstrap_servers"`
	Producer         KafkaProducers `mapstructure:"producer"`
}

type KafkaProducers struct {
	PaymentResponseTopic string `mapstructure:"payment_response_topic"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration. configPath may be empty; environment variables
// such as APP_TCP_PORT or DB_HOST override both defaults and file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.App.Framing = strings.ToLower(strings.TrimSpace(cfg.App.Framing))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Terminal listeners
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.tcp_port", 8583)
	v.SetDefault("app.tls_tcp_port", 0)
	v.SetDefault("app.tls_cert_file", "")
	v.SetDefault("app.tls_key_file", "")
	v.SetDefault("app.framing", FramingRead)
	v.SetDefault("app.read_timeout", "30s")
	v.SetDefault("app.response_timeout", "30s")
	v.SetDefault("app.max_connections", 1000)
	v.SetDefault("app.currency_code", "704")
	v.SetDefault("app.mock_success_rate", 0.9)
	v.SetDefault("app.metrics_port", 9090)
	v.SetDefault("app.packager_file", "")

	// Database
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.username", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "payswitch")
	v.SetDefault("db.ssl_mode", "disable")
	v.SetDefault("db.max_connections", 10)
	v.SetDefault("db.min_connections", 2)
	v.SetDefault("db.migrations", "file://migrations")

	// Kafka
	v.SetDefault("kafka.bootstrap_servers", "")
	v.SetDefault("kafka.producer.payment_response_topic", "payment.response")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks value ranges. Port 0 disables the TLS and metrics
// listeners.
func (c *Config) Validate() error {
	if c.App.TCPPort <= 0 || c.App.TCPPort > 65535 {
		return fmt.Errorf("invalid TCP port: %d", c.App.TCPPort)
	}
	if c.App.TLSTCPPort < 0 || c.App.TLSTCPPort > 65535 {
		return fmt.Errorf("invalid TLS TCP port: %d", c.App.TLSTCPPort)
	}
	if c.App.MetricsPort < 0 || c.App.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.App.MetricsPort)
	}
	if c.App.TLSTCPPort != 0 && (c.App.TLSCertFile == "") != (c.App.TLSKeyFile == "") {
		return fmt.Errorf("TLS certificate and key files must be set together")
	}
	switch c.App.Framing {
	case FramingRead, FramingNewline, FramingLength, FramingLength4, FramingASCII4, FramingHex4:
	default:
		return fmt.Errorf("unknown framing mode: %q", c.App.Framing)
	}
	if c.App.MockSuccessRate < 0 || c.App.MockSuccessRate > 1 {
		return fmt.Errorf("mock success rate must be within 0..1, got %v", c.App.MockSuccessRate)
	}
	if c.App.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.App.ResponseTimeout <= 0 {
		return fmt.Errorf("response timeout must be positive")
	}
	if len(c.App.CurrencyCode) != 3 {
		return fmt.Errorf("currency code must be 3 digits, got %q", c.App.CurrencyCode)
	}
	if c.DB.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.DB.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.DB.Port)
	}
	return nil
}

func (c *Config) TCPAddr() string {
	return net.JoinHostPort(c.App.Host, strconv.Itoa(c.App.TCPPort))
}

func (c *Config) TLSAddr() string {
	return net.JoinHostPort(c.App.Host, strconv.Itoa(c.App.TLSTCPPort))
}

func (c *Config) MetricsAddr() string {
	return net.JoinHostPort(c.App.Host, strconv.Itoa(c.App.MetricsPort))
}

// KafkaBrokers splits KAFKA_BOOTSTRAP_SERVERS. Empty means notifications
// are disabled.
func (c *Config) KafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.Kafka.BootstrapServers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// TLSEnabled reports whether the TLS listener should run.
func (c *Config) TLSEnabled() bool {
	return c.App.TLSTCPPort != 0
}
