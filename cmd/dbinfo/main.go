// Dbinfo connects to the database with the service credentials and prints the result of INFO FOR DB.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/sirupsen/logrus"

	"github.com/ecdb-dev/ecdb/service/database"
)

type configuration struct {
	Database struct {
		URL       string `conf:"default:localhost:8000"`
		Username  string `conf:"default:root"`
		Password  string `conf:"default:root,noprint"`
		Namespace string `conf:"default:main"`
		Name      string `conf:"default:main"`
	}
	Timeout time.Duration `conf:"default:10s"`
}

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			return
		}
		logger.WithError(err).Error("dbinfo failed")
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var cfg configuration
	if err := conf.Parse(args, "CFG", &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			usage, err := conf.Usage("CFG", &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			_, _ = fmt.Fprintln(out, usage)
			return conf.ErrHelpWanted
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	db, err := database.New(ctx, database.Config{
		URL:       cfg.Database.URL,
		Username:  cfg.Database.Username,
		Password:  cfg.Database.Password,
		Namespace: cfg.Database.Namespace,
		Name:      cfg.Database.Name,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	info, err := db.Info(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, info, "", "  "); err != nil {
		return fmt.Errorf("formatting info: %w", err)
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(out)
	return err
}
