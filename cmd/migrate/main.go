package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"fresherjobs/internal/config"
	"fresherjobs/migrations"
)

var commands = []struct{ name, help string }{
	{"up", "apply every pending migration"},
	{"up-one", "apply the next migration"},
	{"down", "roll back the latest migration"},
	{"status", "list migrations and whether they ran"},
	{"version", "print the schema version"},
	{"reset", "roll back every migration"},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: migrate [-db path] <command>")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-9s %s\n", c.name, c.help)
	}
	fmt.Fprintln(out)
	flag.PrintDefaults()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	dbPath := flag.String("db", cfg.DatabasePath, "listing database (defaults to DATABASE_PATH)")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	cmd := flag.Arg(0)

	log := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("db", *dbPath)

	if dir := filepath.Dir(*dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "error", err)
			os.Exit(1)
		}
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}

	if err := migrations.Command(db, cmd); err != nil {
		log.Error("run migration command", "command", cmd, "error", err)
		_ = db.Close()
		os.Exit(1)
	}

	switch cmd {
	case "status", "version":
	default:
		if v, err := goose.GetDBVersion(db); err == nil {
			log.Info("schema updated", "command", cmd, "version", v)
		} else {
			log.Warn("read schema version", "error", err)
		}
	}
	_ = db.Close()
}
