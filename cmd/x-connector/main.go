package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openkcm/common-sdk/pkg/utils"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/pulsedash/x-connector/cmd/x-connector/apiserver"
	"github.com/pulsedash/x-connector/cmd/x-connector/housekeeper"
	"github.com/pulsedash/x-connector/cmd/x-connector/migrate"
)

// BuildInfo will be set by the build system
var BuildInfo = "{}"

// skipGracePeriod marks commands that exit without the shutdown pause.
const skipGracePeriod = "skip-grace-period"

func versionCmd(buildInfo string) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the build information",
		Annotations: map[string]string{skipGracePeriod: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			value, err := utils.ExtractFromComplexValue(buildInfo)
			if err != nil {
				return fmt.Errorf("reading build info: %w", err)
			}

			cmd.Println(value)

			return nil
		},
	}
}

func rootCmd() *cobra.Command {
	var gracePeriod time.Duration

	cmd := &cobra.Command{
		Use:          "x-connector",
		Short:        "X account linking service",
		Long:         "x-connector links dashboard accounts to X with the OAuth 2.0 authorization code flow and PKCE.",
		SilenceUsage: true,
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if cmd.Annotations[skipGracePeriod] != "" || gracePeriod <= 0 {
				return
			}

			cmd.PrintErrf("Graceful shutdown in %s\n", gracePeriod)
			time.Sleep(gracePeriod)
		},
	}

	cmd.PersistentFlags().DurationVar(&gracePeriod, "graceful-shutdown", time.Second, "pause before exiting so in-flight work can drain")

	cmd.AddCommand(
		versionCmd(BuildInfo),
		apiserver.Cmd(BuildInfo),
		housekeeper.Cmd(BuildInfo),
		migrate.Cmd(BuildInfo),
	)

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		slogctx.Error(ctx, "x-connector failed", "error", err)
		os.Exit(1)
	}
}
