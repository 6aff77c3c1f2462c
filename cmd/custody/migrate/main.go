package main

import (
	"flag"
	"log"

	"github.com/JPCompany544/arbix-sub001/pkg/config"
	"github.com/JPCompany544/arbix-sub001/pkg/migrations/custodydb"
	"github.com/JPCompany544/arbix-sub001/pkg/pgutil"
	mghelper "github.com/JPCompany544/arbix-sub001/pkg/pgutil/migrations"

	"github.com/uptrace/bun/migrate"
)

func main() {
	cfgPath := flag.String("config", "config.example.yaml", "Path to configuration file")
	flag.Usage = mghelper.Usage
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("error reading configuration file: %s", err.Error())
	}

	// Connect to database
	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatalf("error connecting to database: %s", err.Error())
	}
	defer db.Close()

	log.Printf("Running migrations for custody database (%s)...\n", cfg.Database.Database)

	migrator := migrate.NewMigrator(db, custodydb.Migrations)

	err = mghelper.RunMigrations(migrator, flag.Args()...)
	if err != nil {
		mghelper.Exitf(err.Error())
	}
}
