// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/angora-org/angora/internal/build"
)

// Config is the root configuration shared by all commands.
type Config struct {
	Broker  Broker  `mapstructure:"broker"`
	Store   Store   `mapstructure:"store"`
	Catalog Catalog `mapstructure:"catalog"`
	Worker  Worker  `mapstructure:"worker"`
	Replay  Replay  `mapstructure:"replay"`
	API     API     `mapstructure:"api"`
	App     App     `mapstructure:"app"`
	Log     Log     `mapstructure:"log"`
	OTel    OTel    `mapstructure:"otel"`

	// Warnings collects non-fatal findings from loading.
	Warnings []string `mapstructure:"-"`
}

// Broker configures the AMQP connection and topology.
type Broker struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Exchange is the name of the single direct exchange. The ingress
	// queue shares this name.
	Exchange string `mapstructure:"exchange"`
	// IngressQueue is the queue consumed by the trigger router.
	IngressQueue string `mapstructure:"ingressQueue"`
}

// URL renders the AMQP connection string.
func (b Broker) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s/",
		b.Username, b.Password, net.JoinHostPort(b.Host, strconv.Itoa(b.Port)))
}

// Store configures the persistence log database.
type Store struct {
	// DSN is the database connection string. A postgres:// scheme selects
	// the pgx driver; anything else is treated as a SQLite path.
	DSN string `mapstructure:"dsn"`
}

// Catalog configures task file discovery.
type Catalog struct {
	// Pattern is the glob matching task config files.
	Pattern string `mapstructure:"pattern"`
}

// Worker configures the task runner.
type Worker struct {
	// QueueName is the worker queue to consume. Defaults to the local hostname.
	QueueName string `mapstructure:"queueName"`
	// Concurrency bounds the number of tasks executing in parallel.
	Concurrency int `mapstructure:"concurrency"`
}

// Replay configures the dead-lettering holding queue.
type Replay struct {
	// TTL is the per-message holding time in milliseconds.
	TTL int `mapstructure:"ttl"`
	// RoutingKey is the worker queue that expired messages are re-routed to.
	// Defaults to the local hostname.
	RoutingKey string `mapstructure:"routingKey"`
}

// API configures the HTTP API server.
type API struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// App configures the operator web application.
type App struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// APIBaseURL is where the app fetches its data from.
	APIBaseURL string `mapstructure:"apiBaseUrl"`
}

// Log configures logging.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// OTel configures optional OpenTelemetry tracing.
type OTel struct {
	Enabled  bool              `mapstructure:"enabled"`
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

const (
	defaultBrokerPort = 5672
	defaultReplayTTL  = 600000 // 10 minutes
	defaultAPIPort    = 55555
	defaultAppPort    = 55550
)

func defaultConfig() *Config {
	hostname := Hostname()
	return &Config{
		Broker: Broker{
			Host:         "localhost",
			Port:         defaultBrokerPort,
			Username:     "guest",
			Password:     "guest",
			Exchange:     build.Slug,
			IngressQueue: build.Slug,
		},
		Store: Store{
			DSN: fmt.Sprintf("%s.db", build.Slug),
		},
		Catalog: Catalog{
			Pattern: "configs/*.yml",
		},
		Worker: Worker{
			QueueName:   hostname,
			Concurrency: 8,
		},
		Replay: Replay{
			TTL:        defaultReplayTTL,
			RoutingKey: hostname,
		},
		API: API{
			Host: "0.0.0.0",
			Port: defaultAPIPort,
		},
		App: App{
			Host:       "0.0.0.0",
			Port:       defaultAppPort,
			APIBaseURL: fmt.Sprintf("http://localhost:%d", defaultAPIPort),
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Hostname returns the local host name, falling back to localhost.
func Hostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return hostname
}
