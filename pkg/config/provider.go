package config

import (
	"errors"
	"fmt"
)

// Defaults applied by Validate.
const (
	DefaultListenAddr     = "0.0.0.0"
	DefaultHTTPPort       = 8080
	DefaultRedisKeyPrefix = "energymonitor"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	LoadConfig() (*ConfigData, error)
	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Reference ReferenceData   `json:"reference"`
	Storage   StorageData     `json:"storage"`
	REST      *RESTServerData `json:"rest,omitempty"`
	Zones     []ZoneData      `json:"zones,omitempty"`
}

// ReferenceData points at the grid carbon-intensity dataset loaded at startup.
type ReferenceData struct {
	Path string `json:"path"`
}

// StorageData selects the backend holding projects and runs. Exactly one
// must be set.
type StorageData struct {
	Redis       *RedisData       `json:"redis,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
}

type RedisData struct {
	Addr      string `json:"addr"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

// RESTServerData configures the HTTP glue in front of the analytics engine.
type RESTServerData struct {
	ListenAddr  string `json:"listen_addr,omitempty"`
	HTTPPort    int    `json:"http_port,omitempty"`
	TLSCertPath string `json:"tls_cert_path,omitempty"`
	TLSKeyPath  string `json:"tls_key_path,omitempty"`
}

// ZoneData is one grid zone offered for selection.
type ZoneData struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
}

// DefaultZones are offered when the configuration names none.
var DefaultZones = []ZoneData{
	{Name: "Eastern India", Label: "Eastern India (IN-EA)"},
	{Name: "Western India", Label: "Western India (IN-WA)"},
	{Name: "Northern India", Label: "Northern India (IN-NA)"},
	{Name: "Southern India", Label: "Southern India (IN-SA)"},
}

// Validate checks the configuration and fills in defaults.
func (c *ConfigData) Validate() error {
	if c.Reference.Path == "" {
		return errors.New("reference.path is required")
	}

	backends := 0
	if c.Storage.Redis != nil {
		backends++
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required")
		}
		if c.Storage.Redis.KeyPrefix == "" {
			c.Storage.Redis.KeyPrefix = DefaultRedisKeyPrefix
		}
	}
	if c.Storage.TimescaleDB != nil {
		backends++
		if c.Storage.TimescaleDB.ConnectionString == "" {
			return errors.New("storage.timescaledb.connection_string is required")
		}
	}
	if backends != 1 {
		return fmt.Errorf("exactly one storage backend must be configured, found %d", backends)
	}

	if c.REST != nil {
		if c.REST.ListenAddr == "" {
			c.REST.ListenAddr = DefaultListenAddr
		}
		if c.REST.HTTPPort == 0 {
			c.REST.HTTPPort = DefaultHTTPPort
		}
	}

	if len(c.Zones) == 0 {
		c.Zones = append([]ZoneData(nil), DefaultZones...)
	}
	for i, z := range c.Zones {
		if z.Name == "" {
			return fmt.Errorf("zones[%d] has no name", i)
		}
		if z.Label == "" {
			c.Zones[i].Label = z.Name
		}
	}

	return nil
}

// ZoneNames returns the configured zone names in order.
func (c *ConfigData) ZoneNames() []string {
	names := make([]string, len(c.Zones))
	for i, z := range c.Zones {
		names[i] = z.Name
	}
	return names
}
