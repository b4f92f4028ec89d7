// Package appconfig loads environment-provided defaults for the linklayer
// CLI, following the LINKLAYER_* naming convention. CLI flags always
// override whatever's set here; appconfig only supplies the defaults a
// flag falls back to when unset.
package appconfig

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// Env is the full set of environment-driven defaults. Zero values mean
// "let the link layer apply its own mode-specific default" (spec.md §6).
type Env struct {
	Mode        string  `env:"LINKLAYER_MODE,default=gbn"`
	Addr        string  `env:"LINKLAYER_ADDR,default=:9090"`
	WindowLen   int     `env:"LINKLAYER_WINDOW_LEN"`
	TimerMS     int     `env:"LINKLAYER_TIMER_MS"`
	MaxChunk    int     `env:"LINKLAYER_MAX_CHUNK"`
	DropRate    float64 `env:"LINKLAYER_DROP_RATE,default=0"`
	CorruptRate float64 `env:"LINKLAYER_CORRUPT_RATE,default=0"`
	MetricsAddr string  `env:"LINKLAYER_METRICS_ADDR,default=:9091"`
	LogLevel    string  `env:"LINKLAYER_LOG_LEVEL,default=info"`
	StatsLog    string  `env:"LINKLAYER_STATS_LOG,default=logfile"`
}

// Load reads LINKLAYER_* environment variables into an Env, applying the
// defaults declared in the struct tags for anything unset.
func Load(ctx context.Context) (Env, error) {
	var e Env
	if err := envconfig.Process(ctx, &e); err != nil {
		return Env{}, err
	}
	return e, nil
}
