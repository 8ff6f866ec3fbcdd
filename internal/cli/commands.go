package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
)

type commandInfo struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	RequestLen  int    `json:"request_len" yaml:"request_len"`
	ResponseLen int    `json:"response_len" yaml:"response_len"`
	Dynamic     bool   `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
}

func newCommandsCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List supported protocol commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var list []commandInfo
			for _, id := range mps.Commands() {
				d := mps.Lookup(id)
				list = append(list, commandInfo{
					ID:          fmt.Sprintf("0x%02X", uint16(id)),
					Name:        d.Name,
					RequestLen:  d.RequestLen,
					ResponseLen: d.ResponseLen,
					Dynamic:     d.Dynamic,
				})
			}
			if o.output != "text" && o.output != "" {
				return render(cmd.OutOrStdout(), o.output, list)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tREQUEST\tRESPONSE")
			for _, c := range list {
				resp := fmt.Sprint(c.ResponseLen)
				if c.Dynamic {
					resp = "≤" + resp
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.Name, c.RequestLen, resp)
			}
			return tw.Flush()
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print gassensor version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gassensor version %s\n", Version)
		},
	}
}
