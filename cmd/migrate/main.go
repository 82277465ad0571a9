package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
)

// migrator — операции над схемой, которые нужны утилите.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.MigrationReport, error)
}

func main() {
	var (
		direction string
		steps     int
		dsn       string
	)

	_ = godotenv.Load()

	flag.StringVar(&direction, "direction", "up", "migration direction: up|down|status")
	flag.IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: STOREFRONT_POSTGRES_DSN)")
	flag.Parse()

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("STOREFRONT_POSTGRES_DSN (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	if err := run(ctx, store, direction, steps, os.Stdout); err != nil {
		fail("%v", err)
	}
}

// run выполняет одну команду миграции и печатает итоговую версию схемы.
func run(ctx context.Context, store migrator, direction string, steps int, out io.Writer) error {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "up":
		if err := store.MigrateUp(ctx, steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		return printStatus(ctx, store, "migrate up ok", out)
	case "down":
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		return printStatus(ctx, store, "migrate down ok", out)
	case "status":
		return printStatus(ctx, store, "migration status", out)
	default:
		return fmt.Errorf("unsupported direction: %s (use up|down|status)", direction)
	}
}

// printStatus печатает версию схемы; изменённые миграции выводятся отдельной строкой.
func printStatus(ctx context.Context, store migrator, prefix string, out io.Writer) error {
	report, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	if _, err := fmt.Fprintf(out, "%s: version=%d applied=%d pending=%d\n",
		prefix, report.Version, report.Applied, len(report.Pending)); err != nil {
		return err
	}
	for _, name := range report.Pending {
		if _, err := fmt.Fprintf(out, "  pending: %s\n", name); err != nil {
			return err
		}
	}
	for _, name := range report.Drifted {
		if _, err := fmt.Fprintf(out, "  drifted: %s (file changed after it was applied)\n", name); err != nil {
			return err
		}
	}
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
