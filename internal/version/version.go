// Package version хранит сведения о сборке, которые выставляются через -ldflags:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/orderstock/internal/version.version=v1.2.0"
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// Version возвращает только номер версии; его отдают /healthz и трассировка.
func Version() string { return version }

// Fields — сведения о сборке для структурированного лога при старте.
func Fields() map[string]any {
	return map[string]any{"version": version, "commit": commit, "build_date": date}
}

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
