// Command linklayer runs one side of a reliable sliding-window link: serve
// listens for a peer, connect dials one, and pipe runs both ends of a
// single in-process demo link with no real network in between.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/netloom/linklayer/internal/appconfig"
	"github.com/netloom/linklayer/pkg/link"
)

// sharedFlags are the knobs common to serve/connect/pipe: mode, window,
// timer, chunk size, loss rates, the metrics address and the stats-log path.
type sharedFlags struct {
	mode        string
	windowLen   int
	timerMS     int
	maxChunk    int
	dropRate    float64
	corruptRate float64
	metricsAddr string
	statsLog    string
}

func registerSharedFlags(fs *pflag.FlagSet, sf *sharedFlags, env appconfig.Env) {
	fs.StringVar(&sf.mode, "mode", env.Mode, "retransmission discipline: gbn or sr")
	fs.IntVar(&sf.windowLen, "window-len", env.WindowLen, "send/receive window size (0 = mode default)")
	fs.IntVar(&sf.timerMS, "timer-ms", env.TimerMS, "retransmission timer, milliseconds (0 = mode default)")
	fs.IntVar(&sf.maxChunk, "max-chunk", env.MaxChunk, "largest chunk accepted by Send (0 = default)")
	fs.Float64Var(&sf.dropRate, "drop-rate", env.DropRate, "independent per-write drop probability, [0,1]")
	fs.Float64Var(&sf.corruptRate, "corrupt-rate", env.CorruptRate, "independent per-write corrupt probability, [0,1]")
	fs.StringVar(&sf.metricsAddr, "metrics-addr", env.MetricsAddr, "address to serve /metrics on")
	fs.StringVar(&sf.statsLog, "stats-log", env.StatsLog, "path to the tab-separated run-summary log")
}

func (sf sharedFlags) linkConfig() (link.Config, error) {
	mode, err := link.ParseMode(sf.mode)
	if err != nil {
		return link.Config{}, err
	}
	cfg := link.Config{
		Mode:      mode,
		WindowLen: sf.windowLen,
		TimerMS:   sf.timerMS,
		MaxChunk:  sf.maxChunk,
	}.Normalize()
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "linklayer",
		Short:         "Reliable sliding-window data-link demo (GBN/SR) over a lossy channel",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().Duration("shutdown-timeout", 2*time.Second, "grace period for in-flight frames on shutdown")

	root.AddCommand(newServeCommand())
	root.AddCommand(newConnectCommand())
	root.AddCommand(newPipeCommand())
	return root
}

func loadEnvOrDefault(ctx context.Context) appconfig.Env {
	env, err := appconfig.Load(ctx)
	if err != nil {
		return appconfig.Env{Mode: "gbn", MetricsAddr: ":9091", StatsLog: "logfile"}
	}
	return env
}

func shutdownTimeout(cmd *cobra.Command) time.Duration {
	d, err := cmd.Flags().GetDuration("shutdown-timeout")
	if err != nil {
		return 2 * time.Second
	}
	return d
}

func fatalf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// randomSeed returns a seed for a channel's loss/corruption RNG. Each call
// is offset from wall-clock time so two channels seeded back-to-back (e.g.
// pipe's client/server pair) don't draw the same sequence.
func randomSeed(offset int64) int64 {
	return time.Now().UnixNano() + offset
}
