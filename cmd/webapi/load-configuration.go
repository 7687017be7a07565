package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// WebAPIConfiguration describes the web API configuration. This structure is automatically parsed by
// loadConfiguration and values from flags, environment variable or configuration file will be loaded.
type WebAPIConfiguration struct {
	Config struct {
		Path string `conf:"default:/conf/config.yml"`
	}
	Web struct {
		APIHost           string        `conf:"default:localhost:3000"`
		ReadHeaderTimeout time.Duration `conf:"default:5s"`
		// ShutdownTimeout of zero waits for every in-flight request
		ShutdownTimeout time.Duration `conf:"default:0s"`
	}
	Database struct {
		URL       string `conf:"default:localhost:8000"`
		Username  string `conf:"default:root"`
		Password  string `conf:"default:root,noprint"`
		Namespace string `conf:"default:main"`
		Name      string `conf:"default:main"`
		// HealthTimeout of zero lets the readiness probe wait for the database indefinitely
		HealthTimeout time.Duration `conf:"default:0s"`
	}
	Debug   bool
	LogJSON bool
}

// dotenvFiles are loaded, in order, before parsing. Variables already in the environment are never overridden.
var dotenvFiles = []string{".env.dev.pub", ".env"}

// loadConfiguration creates a WebAPIConfiguration starting from flags, environment variables and configuration file.
// It works by loading environment variables first, then update the config using command line flags, finally loading the
// configuration file (specified in WebAPIConfiguration.Config.Path).
// So, CLI parameters will override the environment, and configuration file will override everything.
// Note that the configuration file can be specified only via CLI or environment variable.
func loadConfiguration(args []string) (WebAPIConfiguration, error) {
	var cfg WebAPIConfiguration

	for _, fn := range dotenvFiles {
		if err := godotenv.Load(fn); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("loading %s: %w", fn, err)
		}
	}

	// Try to load configuration from environment variables and command line switches
	if err := conf.Parse(args, "CFG", &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			usage, err := conf.Usage("CFG", &cfg)
			if err != nil {
				return cfg, fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage) //nolint:forbidigo
			return cfg, conf.ErrHelpWanted
		}
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	// Override values from YAML if specified and if it exists (useful in k8s/compose)
	fp, err := os.Open(cfg.Config.Path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("can't read the config file, while it exists: %w", err)
	} else if err == nil {
		yamlFile, err := io.ReadAll(fp)
		_ = fp.Close()
		if err != nil {
			return cfg, fmt.Errorf("can't read config file: %w", err)
		}
		err = yaml.Unmarshal(yamlFile, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("can't unmarshal config file: %w", err)
		}
	}

	return cfg, nil
}
