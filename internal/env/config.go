package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/luma/eventmsg/protocol"
)

var ErrInvalidConfig = errors.New("Invalid configuration")

// Config is built from defaults, then an optional TOML file, then EVENTMSG_*
// environment variables, each overriding the last.
type Config struct {
	Addr  uint8  `toml:"addr" env:"EVENTMSG_ADDR,overwrite"`
	Group uint8  `toml:"group" env:"EVENTMSG_GROUP,overwrite"`
	Name  string `toml:"name" env:"EVENTMSG_NAME,overwrite"`

	LogLevel  string `toml:"log_level" env:"EVENTMSG_LOG_LEVEL,overwrite"`
	DebugHTTP bool   `toml:"debug_http" env:"EVENTMSG_DEBUG_HTTP,overwrite"`

	QueueCapacity int `toml:"queue_capacity" env:"EVENTMSG_QUEUE_CAPACITY,overwrite"`
	PacketSize    int `toml:"packet_size" env:"EVENTMSG_PACKET_SIZE,overwrite"`
	MaxEventName  int `toml:"max_event_name" env:"EVENTMSG_MAX_EVENT_NAME,overwrite"`
	MaxEventData  int `toml:"max_event_data" env:"EVENTMSG_MAX_EVENT_DATA,overwrite"`

	NATSURL    string `toml:"nats_url" env:"EVENTMSG_NATS_URL,overwrite"`
	NATSPrefix string `toml:"nats_prefix" env:"EVENTMSG_NATS_PREFIX,overwrite"`

	Relay         bool `toml:"relay" env:"EVENTMSG_RELAY,overwrite"`
	EnforceSender bool `toml:"enforce_sender" env:"EVENTMSG_ENFORCE_SENDER,overwrite"`

	// Serial is a device or pipe to attach as an extra source.
	Serial string `toml:"serial" env:"EVENTMSG_SERIAL,overwrite"`
}

func DefaultConfig() Config {
	limits := protocol.DefaultLimits()

	return Config{
		Name:          "eventmsg-bridge",
		LogLevel:      "info",
		QueueCapacity: 32,
		PacketSize:    256,
		MaxEventName:  limits.MaxEventName,
		MaxEventData:  limits.MaxEventData,
		NATSPrefix:    "eventmsg",
		Relay:         true,
	}
}

// LoadConfig reads .env.local when present, then the TOML file at path when path is
// not empty, then the environment.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	config := DefaultConfig()

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load .env.local: %w", err)
		}
	}

	if path != "" {
		meta, err := toml.DecodeFile(path, &config)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}

		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, key := range undecoded {
				keys[i] = key.String()
			}

			return nil, fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.QueueCapacity < 1 {
		return fmt.Errorf("%w: queue capacity must be positive", ErrInvalidConfig)
	}

	if c.PacketSize < 1 {
		return fmt.Errorf("%w: packet size must be positive", ErrInvalidConfig)
	}

	if c.MaxEventName < 1 || c.MaxEventData < 1 {
		return fmt.Errorf("%w: event limits must be positive", ErrInvalidConfig)
	}

	if c.Addr == protocol.Broadcast {
		return fmt.Errorf("%w: address 0x%02X is reserved for broadcast", ErrInvalidConfig, c.Addr)
	}

	return nil
}

func (c *Config) Limits() protocol.Limits {
	return protocol.Limits{
		MaxEventName: c.MaxEventName,
		MaxEventData: c.MaxEventData,
	}
}
