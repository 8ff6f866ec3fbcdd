package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taoyao-code/gas-sensor/internal/protocol/mps"
)

func newQueryCommand(o *rootOptions) *cobra.Command {
	var start bool
	cmd := &cobra.Command{
		Use:   "query <command>",
		Short: "Send one command (answer, conc, id, eng-data, temp, pres, rel-hum, abs-hum, status, version, sensor-info, shutdown) and print the decoded response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := mps.ParseCommand(args[0])
			if err != nil {
				return err
			}
			log := o.cliLogger(cmd.ErrOrStderr())
			sess, closeSession, err := o.openSession(log)
			if err != nil {
				return err
			}
			defer closeSession()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if start {
				unit, err := o.unit()
				if err != nil {
					return err
				}
				if _, err := sess.Submit(ctx, mps.Measurement(unit, mps.ModeContinuous)); err != nil {
					return fmt.Errorf("start measurement: %w", err)
				}
			}

			resp, err := sess.Submit(ctx, c)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case !c.ExpectsResponse():
				return render(out, o.output, map[string]any{mps.KeyCommandID: mps.Lookup(c.ID()).Name, "Sent": true})
			case resp == nil:
				return errors.New("no valid response: frame discarded")
			case o.output == "text" || o.output == "":
				return render(out, o.output, resp)
			default:
				return render(out, o.output, resp.Map())
			}
		},
	}
	cmd.Flags().BoolVar(&start, "start", false, "send MEAS continuous before the command")
	return cmd
}

func newMeasureCommand(o *rootOptions) *cobra.Command {
	var unitFlag string
	cmd := &cobra.Command{
		Use:       "measure <start|stop>",
		Short:     "Start or stop continuous measurement",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"start", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := mps.ParseMode(args[0])
			if err != nil {
				return err
			}
			if unitFlag == "" {
				unitFlag = o.cfg.Poller.Unit
			}
			unit, err := mps.ParseUnit(unitFlag)
			if err != nil {
				return err
			}
			log := o.cliLogger(cmd.ErrOrStderr())
			sess, closeSession, err := o.openSession(log)
			if err != nil {
				return err
			}
			defer closeSession()

			c := mps.Measurement(unit, mode)
			if _, err := sess.Submit(context.Background(), c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s sent (unit %s)\n", mode, unit)
			return nil
		},
	}
	cmd.Flags().StringVarP(&unitFlag, "unit", "u", "", "concentration unit lel|vol (default: poller.unit)")
	return cmd
}
