package housekeeper

import (
	"github.com/spf13/cobra"

	"github.com/pulsedash/x-connector/internal/business"
	"github.com/pulsedash/x-connector/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"housekeeper",
		"X Connector housekeeping job",
		"X Connector housekeeping job purges expired OAuth states",
		buildInfo,
		cmdutils.RunAsService,
		business.HousekeeperMain,
	)
}
