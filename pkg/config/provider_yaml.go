package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// ConfigYAML mirrors ConfigData with YAML tags
type ConfigYAML struct {
	Reference ReferenceYAML   `yaml:"reference"`
	Storage   StorageYAML     `yaml:"storage"`
	REST      *RESTServerYAML `yaml:"rest,omitempty"`
	Zones     []ZoneYAML      `yaml:"zones,omitempty"`
}

type ReferenceYAML struct {
	Path string `yaml:"path"`
}

type StorageYAML struct {
	Redis       *RedisYAML       `yaml:"redis,omitempty"`
	TimescaleDB *TimescaleDBYAML `yaml:"timescaledb,omitempty"`
}

type RedisYAML struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"key-prefix,omitempty"`
}

type TimescaleDBYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type RESTServerYAML struct {
	ListenAddr  string `yaml:"listen-addr,omitempty"`
	HTTPPort    int    `yaml:"http-port,omitempty"`
	TLSCertPath string `yaml:"tls-cert-path,omitempty"`
	TLSKeyPath  string `yaml:"tls-key-path,omitempty"`
}

type ZoneYAML struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label,omitempty"`
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	var yamlConfig ConfigYAML
	if err := yaml.UnmarshalStrict(cfgFile, &yamlConfig); err != nil {
		return nil, err
	}

	config := &ConfigData{
		Reference: ReferenceData{Path: yamlConfig.Reference.Path},
	}

	if r := yamlConfig.Storage.Redis; r != nil {
		config.Storage.Redis = &RedisData{
			Addr:      r.Addr,
			Password:  r.Password,
			DB:        r.DB,
			KeyPrefix: r.KeyPrefix,
		}
	}
	if ts := yamlConfig.Storage.TimescaleDB; ts != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: ts.ConnectionString,
		}
	}

	if rest := yamlConfig.REST; rest != nil {
		config.REST = &RESTServerData{
			ListenAddr:  rest.ListenAddr,
			HTTPPort:    rest.HTTPPort,
			TLSCertPath: rest.TLSCertPath,
			TLSKeyPath:  rest.TLSKeyPath,
		}
	}

	for _, z := range yamlConfig.Zones {
		config.Zones = append(config.Zones, ZoneData{Name: z.Name, Label: z.Label})
	}

	return config, nil
}

// IsReadOnly returns true as YAML files are read-only in this implementation
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
