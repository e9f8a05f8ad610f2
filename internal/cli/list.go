package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/selftest/internal/suite"
	"github.com/roach88/selftest/internal/units"
)

// UnitInfo describes one built-in unit in list output.
type UnitInfo struct {
	Name      string `json:"name"`
	Phase     string `json:"phase"`
	OnRequest bool   `json:"on_request"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the built-in test units",
		Long: `List the built-in test units in execution order.

Units marked "on request" only run when selected with run --test.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, cmd)
		},
	}
	return cmd
}

func runList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	all := units.All()

	if formatter.JSON() {
		infos := make([]UnitInfo, len(all))
		for i, u := range all {
			infos[i] = UnitInfo{Name: u.Name, Phase: u.Phase.String(), OnRequest: u.OnRequest}
		}
		return formatter.Success(infos)
	}

	printUnitList(cmd.OutOrStdout(), all)
	return nil
}

// printUnitList prints the available tests the way the firmware console
// lists them.
func printUnitList(w io.Writer, list []*suite.Unit) {
	fmt.Fprintln(w, "\nAvailable tests:")
	for _, u := range list {
		if u.OnRequest {
			fmt.Fprintf(w, "'%s' - on request\n", u.Name)
		} else {
			fmt.Fprintf(w, "'%s'\n", u.Name)
		}
	}
}
