package main

import (
	"context"
	"net"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/netloom/linklayer/internal/metrics"
	"github.com/netloom/linklayer/pkg/channel"
	"github.com/netloom/linklayer/pkg/link"
)

func newServeCommand() *cobra.Command {
	var sf sharedFlags
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for one peer connection and run a link-layer server endpoint over it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := sf.linkConfig()
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return fatalf("listen on %s: %w", listenAddr, err)
			}
			defer ln.Close()

			ctx := cmd.Context()
			dlog.Infof(ctx, "listening on %s", listenAddr)

			conn, err := acceptWithContext(ctx, ln)
			if err != nil {
				return err
			}

			group := dgroup.NewGroup(ctx, dgroup.GroupConfig{
				SoftShutdownTimeout:  shutdownTimeout(cmd),
				EnableSignalHandling: true,
			})

			lossy := channel.New(conn, sf.dropRate, sf.corruptRate, randomSeed(0))
			ep := link.NewEndpoint(ctx, lossy, cfg, "server")

			group.Go("shutdown-log", func(ctx context.Context) error {
				<-ctx.Done()
				logRunStats(ctx, sf, cfg.Mode.String(), ep, "server")
				return ep.Close()
			})

			metrics.Serve(ctx, group, sf.metricsAddr, ep.Collector())
			runConsumer(ctx, group, ep, cmd.InOrStdin(), cmd.OutOrStdout(), cfg.MaxChunk)

			return group.Wait()
		},
	}
	env := loadEnvOrDefault(context.Background())
	cmd.Flags().StringVar(&listenAddr, "addr", env.Addr, "address to listen on")
	registerSharedFlags(cmd.Flags(), &sf, env)
	return cmd
}

// acceptWithContext accepts a single connection, or gives up when ctx is
// done first (e.g. the user hits ctrl-C before a peer ever connects).
func acceptWithContext(ctx context.Context, ln net.Listener) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-ctx.Done():
		ln.Close()
		return nil, ctx.Err()
	}
}
