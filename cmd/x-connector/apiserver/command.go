package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/pulsedash/x-connector/internal/business"
	"github.com/pulsedash/x-connector/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"X Connector API server",
		"X Connector API server hosts the account linking API, the browser pages and a gRPC health endpoint",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
