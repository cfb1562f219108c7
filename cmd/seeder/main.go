//cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/phishdrill-backend/internal/app"
	"github.com/unclebandit/phishdrill-backend/internal/config"
	"github.com/unclebandit/phishdrill-backend/internal/logger"
)

// The seeder applies the schema and loads an allowlist CSV
// (email,name,department per line, no header).
func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the YAML config file")
	file := flag.String("file", "seed/employees.csv", "allowlist CSV to import")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	ctx := context.Background()

	stores, closeStores, err := app.OpenStores(ctx, cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open storage")
	}
	defer closeStores()

	f, err := os.Open(*file)
	if err != nil {
		log.WithError(err).WithField("file", *file).Fatal("failed to open seed file")
	}
	defer f.Close()

	services := app.NewServices(cfg, stores, app.Deps{}, log)
	res, err := services.Allowlist.ImportCSV(ctx, f)
	if err != nil {
		log.WithError(err).Fatal("import failed")
	}

	log.WithFields(logrus.Fields{
		"file":     *file,
		"imported": res.Imported,
		"rejected": len(res.Rejected),
	}).Info("allowlist seeded")
}
