package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// newServeCmd exposes the heap/index/planner counters and histograms
// registered by internal/obs on a /metrics endpoint, bridging OTel
// metrics to Prometheus's scrape format the way the rest of the corpus
// pairs the two (cuemby-warren's prometheus/client_golang alongside
// steveyegge-beads' OTel instrumentation).
func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "expose /metrics for the running dbxp process",
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := otelprom.New()
			if err != nil {
				return fmt.Errorf("dbxp: start prometheus exporter: %w", err)
			}
			provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
			otel.SetMeterProvider(provider)
			defer provider.Shutdown(cmd.Context())

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			fmt.Fprintf(cmd.OutOrStdout(), "serving metrics on %s/metrics\n", addr)
			srv := &http.Server{Addr: addr, Handler: mux}
			go func() {
				<-cmd.Context().Done()
				_ = srv.Close()
			}()
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address for the metrics endpoint")
	return cmd
}
