package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/metalagman/ttdr/internal/logging"
	"github.com/metalagman/ttdr/internal/metrics"
	"github.com/metalagman/ttdr/internal/web"
	"github.com/spf13/cobra"
)

func uiCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Start the web UI for browsing runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, closeFn, err := openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			server, err := web.NewServer(a.Store, metrics.New().Registry(), logging.Component("web"))
			if err != nil {
				return err
			}

			addr := fmt.Sprintf(":%d", port)
			httpServer := &http.Server{Addr: addr, Handler: server.Routes(), ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(ctx)
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "Starting UI on http://localhost%s\n", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	return cmd
}
