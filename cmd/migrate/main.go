package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/mxi/presale/internal/infrastructure/config"
	"github.com/mxi/presale/internal/infrastructure/logger"
	"github.com/mxi/presale/internal/infrastructure/migration"
	"github.com/mxi/presale/migrations"
	"go.uber.org/zap"
)

func main() {
	var (
		dir      string
		logLevel string
		confirm  bool
	)
	flag.StringVar(&dir, "path", "", "Read migrations from this directory instead of the embedded set")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&confirm, "confirm", false, "Confirm a destructive command (down, force)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	log, err := logger.New(logger.Config{Level: logLevel, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(args, dir, confirm, log); err != nil {
		log.Error("Migration command failed", zap.String("command", args[0]), zap.Error(err))
		os.Exit(1)
	}
}

func run(args []string, dir string, confirm bool, log *zap.Logger) error {
	src := migration.Source{FS: migrations.FS}
	if dir != "" {
		src = migration.Source{Dir: dir}
	}

	// commands that never touch the database
	switch args[0] {
	case "create":
		if len(args) < 2 {
			return errors.New("usage: migrate create <name> [description]")
		}
		target := dir
		if target == "" {
			target = "migrations"
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		mf, err := migration.CreateMigration(target, args[1], description, time.Now())
		if err != nil {
			return err
		}
		log.Info("Migration created", zap.String("up", mf.UpPath), zap.String("down", mf.DownPath))
		return nil
	case "list":
		fsys := src.FS
		if fsys == nil {
			fsys = os.DirFS(src.Dir)
		}
		list, err := migration.ListMigrations(fsys)
		if err != nil {
			return err
		}
		for _, m := range list {
			fmt.Printf("  %s up=%t down=%t\n", m.Name, m.HasUp, m.HasDown)
		}
		return nil
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to read .env", zap.Error(err))
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	m, err := migration.New(db, src, log)
	if err != nil {
		return err
	}
	defer m.Close()

	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		if !confirm {
			return errors.New("down drops every ledger table; rerun with -confirm")
		}
		return m.Down()
	case "step":
		if len(args) < 2 {
			return errors.New("usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[1])
		}
		return m.Steps(n)
	case "goto":
		if len(args) < 2 {
			return errors.New("usage: migrate goto <version>")
		}
		version, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		return m.GoTo(uint(version))
	case "version":
		st, err := m.Status()
		if err != nil {
			return err
		}
		log.Info("Schema version", zap.Uint("version", st.Version), zap.Bool("dirty", st.Dirty))
		return nil
	case "force":
		if len(args) < 2 {
			return errors.New("usage: migrate force <version>")
		}
		if !confirm {
			return errors.New("force rewrites the recorded version; rerun with -confirm")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		return m.Force(version)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `MXI ledger schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations (-confirm required)
  step <n>              Apply n migrations (negative rolls back)
  goto <version>        Migrate to a specific version
  version               Show the applied version
  force <version>       Record a version as clean (-confirm required)
  create <name> [desc]  Write a new migration pair into -path (default ./migrations)
  list                  List known migrations

Flags:
  -path string          Migrations directory (default: the set compiled into the binary)
  -log-level string     debug, info, warn, error (default info)
  -confirm              Required by destructive commands; flags go before the command

Connection settings come from MXI_DATABASE_* variables or a .env file.`)
}
