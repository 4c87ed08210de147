package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/lib/pq"

	"github.com/yourusername/survey-api/internal/config"
	"github.com/yourusername/survey-api/pkg/database"
)

// Операторская утилита миграций: up, down [N], force V, version.
func main() {
	configPath := flag.String("config", "config/config.yaml", "путь к файлу конфигурации")
	source := flag.String("source", "", "каталог миграций (по умолчанию database.migrationsPath)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-config path] [-source url] up | down [N] | force V | version")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sourceURL := *source
	if sourceURL == "" {
		sourceURL = cfg.Database.MigrationsPath
	}

	db, err := sql.Open("postgres", cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	m, err := database.NewMigrator(db, sourceURL)
	if err != nil {
		log.Fatal(err)
	}

	if err := run(m, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(m *migrate.Migrate, args []string) error {
	switch args[0] {
	case "up":
		return ignoreNoChange(m.Up())
	case "down":
		steps := 1
		if len(args) > 1 {
			if _, err := fmt.Sscanf(args[1], "%d", &steps); err != nil || steps <= 0 {
				return fmt.Errorf("invalid number of steps: %q", args[1])
			}
		}
		return ignoreNoChange(m.Steps(-steps))
	case "force":
		if len(args) < 2 {
			return errors.New("force requires a version")
		}
		var version int
		if _, err := fmt.Sscanf(args[1], "%d", &version); err != nil {
			return fmt.Errorf("invalid version: %q", args[1])
		}
		// Снимает флаг dirty после упавшей миграции
		if err := m.Force(version); err != nil {
			return fmt.Errorf("failed to force version %d: %w", version, err)
		}
		log.Printf("Версия принудительно установлена в %d", version)
		return nil
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("Миграции еще не применялись")
			return nil
		}
		if err != nil {
			return err
		}
		log.Printf("version=%d dirty=%t", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("Изменений нет, схема актуальна")
		return nil
	}
	if err == nil {
		log.Println("Миграции успешно применены")
	}
	return err
}
