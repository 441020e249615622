package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chrissnell/energymonitor/internal/app"
	"github.com/chrissnell/energymonitor/internal/log"
	"github.com/chrissnell/energymonitor/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to configuration source:\n\t\t\t  YAML: config.yaml\n\t\t\t  SQLite: config.db")
	cfgBackend := flag.String("config-backend", "yaml", "Configuration backend type: 'yaml' for YAML files, 'sqlite' for SQLite databases")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	initCfg := flag.Bool("init-config", false, "Create the configuration tables in the SQLite database named by -config and exit (sqlite backend only)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("energymonitor %s\n", version)
		os.Exit(0)
	}

	if *initCfg {
		if err := initConfig(*cfgFile, *cfgBackend); err != nil {
			fmt.Printf("Failed to initialize configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("configuration schema ready in %s\n", *cfgFile)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfgData, err := loadConfig(*cfgFile, *cfgBackend)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	application := app.New(cfgData, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}

func loadConfig(cfgFile, cfgBackend string) (*config.ConfigData, error) {
	filename, _ := filepath.Abs(cfgFile)

	var provider config.ConfigProvider
	var err error

	switch cfgBackend {
	case "yaml":
		provider = config.NewYAMLProvider(filename)
	case "sqlite":
		provider, err = config.NewSQLiteProvider(filename)
		if err != nil {
			return nil, fmt.Errorf("error creating SQLite provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration backend: %s. Use 'yaml' or 'sqlite'", cfgBackend)
	}
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}

	if err := cfgData.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfgData, nil
}

// initConfig creates the SQLite configuration schema and its default config
// row. Running it against an initialized database changes nothing.
func initConfig(cfgFile, cfgBackend string) error {
	if cfgBackend != "sqlite" {
		return fmt.Errorf("-init-config needs -config-backend sqlite, got %q", cfgBackend)
	}

	filename, _ := filepath.Abs(cfgFile)
	provider, err := config.NewSQLiteProvider(filename)
	if err != nil {
		return fmt.Errorf("error creating SQLite provider: %w", err)
	}
	defer provider.Close()

	return provider.EnsureSchema()
}
