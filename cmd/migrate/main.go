package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orderstock/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envDSN         = "ORDERSTOCK_STORAGE__POSTGRES_DSN"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run разбирает флаги и выполняет команду; возвращает код выхода.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		direction string
		steps     int
		dsn       string
	)
	fs.StringVar(&direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envDSN+")")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	direction = strings.ToLower(strings.TrimSpace(direction))
	switch direction {
	case "up", "down", "status":
	default:
		fmt.Fprintf(stderr, "unsupported direction: %s (use up|down|status)\n", direction)
		return 2
	}

	if dsn = strings.TrimSpace(dsn); dsn == "" {
		dsn = strings.TrimSpace(os.Getenv(envDSN))
	}
	if dsn == "" {
		fmt.Fprintf(stderr, "%s (or -dsn) is required\n", envDSN)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fmt.Fprintf(stderr, "open postgres store: %v\n", err)
		return 1
	}
	defer store.Close()

	switch direction {
	case "up":
		if err := store.MigrateUp(ctx, steps); err != nil {
			fmt.Fprintf(stderr, "migrate up failed: %v\n", err)
			return 1
		}
	case "down":
		if err := store.MigrateDown(ctx, steps); err != nil {
			fmt.Fprintf(stderr, "migrate down failed: %v\n", err)
			return 1
		}
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "migration status failed: %v\n", err)
		return 1
	}
	printState(stdout, direction, state)
	return 0
}

func printState(w io.Writer, direction string, state postgres.MigrationState) {
	fmt.Fprintf(w, "migrate %s ok: version=%d applied=%d pending=%d\n",
		direction, state.Version, state.Applied, len(state.Pending))
	for _, name := range state.Pending {
		fmt.Fprintf(w, "  pending %s\n", name)
	}
}
