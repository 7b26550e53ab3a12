package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the system-wide settings coordinator.
// ARCHITECTURAL DISCOVERY: Precedence is file > environment > defaults; the
// listen address additionally yields to the command-line argument in main.
type Config struct {
	Server    *ServerConfig    `json:"server"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Auth      *AuthConfig      `json:"auth"`
	Audit     *AuditConfig     `json:"audit"`
}

type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	QueueSize    int           `json:"queue_size"`
}

// AuthConfig carries the verifier's trust material.
type AuthConfig struct {
	TokenSecret string `json:"token_secret"`
}

// AuditConfig controls the connection event log. An empty path disables it.
type AuditConfig struct {
	Path string `json:"path"`
}

// DefaultConfig returns the defaults the relay runs with out of the box.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			QueueSize:    256,
		},
		Auth: &AuthConfig{
			TokenSecret: "",
		},
		Audit: &AuditConfig{
			Path: "",
		},
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("server configuration is required")
	}

	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be positive")
	}

	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("websocket read timeout must be positive")
	}

	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be positive")
	}

	if c.WebSocket.QueueSize <= 0 {
		return fmt.Errorf("websocket queue size must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}

	if c.Audit == nil {
		return fmt.Errorf("audit configuration is required")
	}

	return nil
}

// ListenAddr returns the host:port the relay binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoadFromEnv overlays environment variables on the defaults.
// FUNCTIONAL DISCOVERY: ACCESS_TOKEN_SECRET is the token issuer's variable
// name; the relay shares it so both sides derive the same signing key.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if host := os.Getenv("NANORELAY_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("NANORELAY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if readTimeout := os.Getenv("NANORELAY_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.Server.ReadTimeout = timeout
		}
	}

	if writeTimeout := os.Getenv("NANORELAY_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.Server.WriteTimeout = timeout
		}
	}

	if pingInterval := os.Getenv("NANORELAY_WS_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}

	if wsReadTimeout := os.Getenv("NANORELAY_WS_READ_TIMEOUT"); wsReadTimeout != "" {
		if timeout, err := time.ParseDuration(wsReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}

	if wsWriteTimeout := os.Getenv("NANORELAY_WS_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if timeout, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}

	if queueSize := os.Getenv("NANORELAY_WS_QUEUE_SIZE"); queueSize != "" {
		if size, err := strconv.Atoi(queueSize); err == nil {
			config.WebSocket.QueueSize = size
		}
	}

	if secret := os.Getenv("ACCESS_TOKEN_SECRET"); secret != "" {
		config.Auth.TokenSecret = secret
	}

	if path := os.Getenv("NANORELAY_AUDIT_PATH"); path != "" {
		config.Audit.Path = path
	}

	return config
}

// ConfigFile mirrors Config with string durations for JSON parsing.
type ConfigFile struct {
	Server    *ServerConfigFile    `json:"server"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Auth      *AuthConfig          `json:"auth"`
	Audit     *AuditConfig         `json:"audit"`
}

type ServerConfigFile struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	QueueSize    int    `json:"queue_size"`
}

// LoadFromFile reads a JSON configuration file over the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Server != nil {
		if configFile.Server.Host != "" {
			config.Server.Host = configFile.Server.Host
		}
		if configFile.Server.Port > 0 {
			config.Server.Port = configFile.Server.Port
		}
		if configFile.Server.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.Server.ReadTimeout); err == nil {
				config.Server.ReadTimeout = timeout
			}
		}
		if configFile.Server.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.Server.WriteTimeout); err == nil {
				config.Server.WriteTimeout = timeout
			}
		}
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.QueueSize > 0 {
			config.WebSocket.QueueSize = configFile.WebSocket.QueueSize
		}
		if configFile.WebSocket.PingInterval != "" {
			if interval, err := time.ParseDuration(configFile.WebSocket.PingInterval); err == nil {
				config.WebSocket.PingInterval = interval
			}
		}
		if configFile.WebSocket.ReadTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.ReadTimeout); err == nil {
				config.WebSocket.ReadTimeout = timeout
			}
		}
		if configFile.WebSocket.WriteTimeout != "" {
			if timeout, err := time.ParseDuration(configFile.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = timeout
			}
		}
	}

	if configFile.Auth != nil && configFile.Auth.TokenSecret != "" {
		config.Auth.TokenSecret = configFile.Auth.TokenSecret
	}

	if configFile.Audit != nil && configFile.Audit.Path != "" {
		config.Audit.Path = configFile.Audit.Path
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > env > defaults.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// File errors fall back to environment/defaults.
	}

	return config
}
