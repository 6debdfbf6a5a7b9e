package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspects or clears the once-per-day run marker",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Prints the date of the last attempted run",
			Args:  cobra.NoArgs,
			RunE:  c.lockStatus,
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Clears the marker so the next run proceeds today",
			Args:  cobra.NoArgs,
			RunE:  c.lockReset,
		},
	)
	return cmd
}

func (c *cli) lockStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	b, err := c.buildBackends(ctx)
	if err != nil {
		return err
	}
	guard, err := c.guard(b)
	if err != nil {
		return err
	}

	last, err := guard.LastRun(ctx)
	if err != nil {
		return err
	}
	if last == "" {
		last = "never"
	}
	state := "allowed"
	if !guard.ShouldRun(ctx) {
		state = "blocked"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "last run: %s\ntoday: %s\n", last, state)
	return nil
}

func (c *cli) lockReset(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	b, err := c.buildBackends(ctx)
	if err != nil {
		return err
	}
	guard, err := c.guard(b)
	if err != nil {
		return err
	}
	if err := guard.Reset(ctx); err != nil {
		return fmt.Errorf("reset marker: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "marker cleared")
	return nil
}
