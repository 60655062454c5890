// Command fakeapi serves the in-memory necrosis backend from
// internal/testutil on a fixed address, for trying the client and for
// running the e2e suite without the real analysis service. Results are
// deterministic pseudo-values, not a model's output.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x6d61/necrosis/internal/testutil"
)

func main() {
	var (
		addr     string
		username string
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "fakeapi",
		Short: "Serve a fake necrosis analysis backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer log.Sync()

			b, err := testutil.NewBackendAt(addr)
			if err != nil {
				return err
			}
			defer b.Close()

			if email != "" {
				b.AddUser(username, email, password)
				log.Info("seeded user", zap.String("username", username), zap.String("email", email))
			}
			log.Info("fake backend listening", zap.String("api_url", b.URL()))

			<-cmd.Context().Done()
			log.Info("shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:18000", "Listen address")
	cmd.Flags().StringVar(&username, "username", "demo", "Seeded username")
	cmd.Flags().StringVar(&email, "email", "demo@example.com", "Seeded email (empty to skip seeding)")
	cmd.Flags().StringVar(&password, "password", "demopass1", "Seeded password")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
