package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tendermint/tm-exchange/config"
	"github.com/tendermint/tm-exchange/internal/exchange"
	"github.com/tendermint/tm-exchange/internal/simulation"
	"github.com/tendermint/tm-exchange/libs/log"
)

const shutdownTimeout = 4 * time.Second

// MakeSimulateCommand returns the command that syncs a generated chain from
// in-memory peers and prints what the exchange learned about each of them.
func MakeSimulateCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	opts := simulation.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Fetch a generated chain from simulated peers",
		Long: `Simulate builds an in-memory network of peers serving a generated chain
and fetches every header, body, receipt list and state node from them. Peers
get slower and serve more items per response with their index. The first
--faulty peers corrupt their responses and are dropped once caught.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var metrics *exchange.Metrics
			if conf.Instrumentation.Prometheus {
				metrics = exchange.PrometheusMetrics(conf.Instrumentation.Namespace)
				srv := startPrometheusServer(logger, conf.Instrumentation.PrometheusListenAddr)
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					if err := srv.Shutdown(sctx); err != nil {
						logger.Error("prometheus server shutdown", "err", err)
					}
				}()
			}

			report, err := simulation.Run(ctx, logger, conf.Exchange, opts, metrics)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().IntVar(&opts.Peers, "peers", opts.Peers, "number of simulated peers")
	cmd.Flags().IntVar(&opts.Blocks, "blocks", opts.Blocks, "length of the generated chain")
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "seed of the generated chain")
	cmd.Flags().IntVar(&opts.Workers, "workers", opts.Workers, "number of concurrent fetchers")
	cmd.Flags().DurationVar(&opts.Latency, "latency", opts.Latency, "one-way latency to the fastest peer")
	cmd.Flags().IntVar(&opts.MaxServe, "max-serve", opts.MaxServe, "items per response served by the first peer (0 for no cap)")
	cmd.Flags().IntVar(&opts.Faulty, "faulty", opts.Faulty, "number of peers corrupting their responses")
	addExchangeFlags(cmd, conf)

	return cmd
}

// addExchangeFlags exposes the [exchange] section of the config on the
// command line.
func addExchangeFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().Duration("exchange.request-timeout", conf.Exchange.RequestTimeout, "default response timeout")
	cmd.Flags().Bool("exchange.use-request-ids", conf.Exchange.UseRequestIDs, "match responses to requests by id")
	cmd.Flags().Float64("exchange.measurement-impact", conf.Exchange.MeasurementImpact, "weight of a new sample in the peer averages")
	cmd.Flags().Duration("exchange.target-rtt", conf.Exchange.TargetRTT, "round trip time recommended batch sizes aim for")
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus, "serve prometheus metrics")
	cmd.Flags().String("instrumentation.prometheus-listen-addr", conf.Instrumentation.PrometheusListenAddr, "prometheus listen address")
}

func startPrometheusServer(logger log.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("prometheus server", "err", err)
		}
	}()
	return srv
}

func printReport(out io.Writer, report *simulation.Report) error {
	fmt.Fprintf(out, "fetched %d headers, %d bodies, %d receipt lists and %d state nodes in %v\n",
		report.Headers, report.Bodies, report.Receipts, report.Nodes, report.Elapsed.Round(time.Millisecond))
	if report.Mismatches > 0 {
		fmt.Fprintf(out, "%d headers differ from the generated chain\n", report.Mismatches)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PEER\tKIND\tSAMPLES\tRTT\tITEMS/REQ\tITEMS/S\tCOMPLETENESS\tSTATUS")
	for _, p := range report.Peers {
		status := "ok"
		switch {
		case p.Banned:
			status = "banned"
		case p.Faulty:
			status = "faulty"
		}
		for _, kind := range exchange.Kinds {
			st, ok := p.Stats[kind]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%s\t%v\t%d\t%v\t%.1f\t%.1f\t%.2f\t%s\n",
				p.ID.ShortString(), kind, st.Samples, st.RoundTrip.Round(time.Millisecond),
				st.ItemsPerRequest, st.Throughput, st.Completeness, status)
		}
		if len(p.Stats) == 0 {
			fmt.Fprintf(w, "%s\t-\t0\t-\t-\t-\t-\t%s\n", p.ID.ShortString(), status)
		}
	}
	return w.Flush()
}
