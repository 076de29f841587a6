package migrate

import (
	"github.com/spf13/cobra"

	"github.com/pulsedash/x-connector/internal/business"
	"github.com/pulsedash/x-connector/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"X Connector migrations",
		"X Connector migrations create the OAuth state and linked account tables",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
