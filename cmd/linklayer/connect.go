package main

import (
	"context"
	"net"

	"github.com/datawire/dlib/dgroup"
	"github.com/spf13/cobra"

	"github.com/netloom/linklayer/internal/metrics"
	"github.com/netloom/linklayer/pkg/channel"
	"github.com/netloom/linklayer/pkg/link"
)

func newConnectCommand() *cobra.Command {
	var sf sharedFlags
	var dialAddr string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Dial a peer and run a link-layer client endpoint over the connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := sf.linkConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", dialAddr)
			if err != nil {
				return fatalf("dial %s: %w", dialAddr, err)
			}

			group := dgroup.NewGroup(ctx, dgroup.GroupConfig{
				SoftShutdownTimeout:  shutdownTimeout(cmd),
				EnableSignalHandling: true,
			})

			lossy := channel.New(conn, sf.dropRate, sf.corruptRate, randomSeed(0))
			ep := link.NewEndpoint(ctx, lossy, cfg, "client")

			group.Go("shutdown-log", func(ctx context.Context) error {
				<-ctx.Done()
				logRunStats(ctx, sf, cfg.Mode.String(), ep, "client")
				return ep.Close()
			})

			metrics.Serve(ctx, group, sf.metricsAddr, ep.Collector())
			runConsumer(ctx, group, ep, cmd.InOrStdin(), cmd.OutOrStdout(), cfg.MaxChunk)

			return group.Wait()
		},
	}
	env := loadEnvOrDefault(context.Background())
	dialDefault := env.Addr
	if dialDefault == ":9090" {
		// LINKLAYER_ADDR's own default is a bind address; dialing it verbatim
		// still resolves to localhost, but spell out the host for clarity
		// when the operator hasn't overridden it at all.
		dialDefault = "localhost:9090"
	}
	cmd.Flags().StringVar(&dialAddr, "addr", dialDefault, "address to dial")
	registerSharedFlags(cmd.Flags(), &sf, env)
	return cmd
}
