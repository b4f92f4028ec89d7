package main

import (
	"bufio"
	"context"
	"io"
	"net"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/netloom/linklayer/internal/metrics"
	"github.com/netloom/linklayer/internal/statslog"
	"github.com/netloom/linklayer/pkg/channel"
	"github.com/netloom/linklayer/pkg/link"
)

// runConsumer is the demo Consumer from SPEC_FULL.md §4.8: it feeds stdin
// into Send in ≤MaxChunk pieces and writes whatever DeliverUpTo returns to
// stdout, until either direction hits ErrShutdown.
func runConsumer(ctx context.Context, group *dgroup.Group, ep *link.Endpoint, in io.Reader, out io.Writer, maxChunk int) {
	group.Go("consumer-send", func(ctx context.Context) error {
		r := bufio.NewReaderSize(in, maxChunk)
		buf := make([]byte, maxChunk)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				if serr := ep.Send(ctx, buf[:n]); serr != nil {
					return serr
				}
			}
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		}
	})

	group.Go("consumer-deliver", func(ctx context.Context) error {
		for {
			chunk, err := ep.DeliverUpTo(ctx, maxChunk)
			if err != nil {
				return err
			}
			if _, werr := out.Write(chunk); werr != nil {
				return werr
			}
		}
	})
}

func newPipeCommand() *cobra.Command {
	var sf sharedFlags
	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "Run both ends of a link in-process, piping stdin to stdout through it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := sf.linkConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			group := dgroup.NewGroup(ctx, dgroup.GroupConfig{
				SoftShutdownTimeout: shutdownTimeout(cmd),
				EnableSignalHandling: true,
			})

			clientConn, serverConn := net.Pipe()
			clientChan := channel.New(clientConn, sf.dropRate, sf.corruptRate, randomSeed(0))
			serverChan := channel.New(serverConn, sf.dropRate, sf.corruptRate, randomSeed(1))

			client := link.NewEndpoint(ctx, clientChan, cfg, "client")
			server := link.NewEndpoint(ctx, serverChan, cfg, "server")

			group.Go("shutdown-log", func(ctx context.Context) error {
				<-ctx.Done()
				logRunStats(ctx, sf, cfg.Mode.String(), client, "client")
				logRunStats(ctx, sf, cfg.Mode.String(), server, "server")
				return closeEndpoints(client, server)
			})

			metrics.Serve(ctx, group, sf.metricsAddr, client.Collector(), server.Collector())
			// stdin enters the link at the client and comes out at the server,
			// so stdout is fed from the server's end.
			runConsumer(ctx, group, client, cmd.InOrStdin(), io.Discard, cfg.MaxChunk)
			out := cmd.OutOrStdout()
			group.Go("server-deliver", func(ctx context.Context) error {
				for {
					chunk, err := server.DeliverUpTo(ctx, cfg.MaxChunk)
					if err != nil {
						return err
					}
					if _, werr := out.Write(chunk); werr != nil {
						return werr
					}
				}
			})

			dlog.Info(ctx, "pipe link established")
			return group.Wait()
		},
	}
	registerSharedFlags(cmd.Flags(), &sf, loadEnvOrDefault(context.Background()))
	return cmd
}

// closeEndpoints closes both endpoints even if the first close fails,
// aggregating whatever errors come back.
func closeEndpoints(eps ...*link.Endpoint) error {
	var result *multierror.Error
	for _, ep := range eps {
		if err := ep.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func logRunStats(ctx context.Context, sf sharedFlags, mode string, ep *link.Endpoint, role string) {
	w, err := statslog.Open(sf.statsLog)
	if err != nil {
		dlog.Errorf(ctx, "statslog open: %v", err)
		return
	}
	if err := w.Append(mode, sf.dropRate, sf.corruptRate, role, ep.Stats()); err != nil {
		dlog.Errorf(ctx, "statslog append: %v", err)
	}
}
