package cli

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/nozo-moto/poorlock"
)

func (a *app) lockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lock KEY",
		Short: "Try once to acquire a lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.attempt(cmd, args[0], a.locker.Lock)
		},
	}
}

func (a *app) secondCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "second KEY",
		Short: "Try once to become the second claimant of a held lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.attempt(cmd, args[0], a.locker.LockSecond)
		},
	}
}

func (a *app) attempt(cmd *cobra.Command, raw string, try func(context.Context, poorlock.Key) error) error {
	key, err := poorlock.NewKey(raw)
	if err != nil {
		return err
	}
	err = try(cmd.Context(), key)
	if poorlock.IsAlreadyLocked(err) {
		fmt.Fprintf(cmd.OutOrStdout(), "acquired=false key=%s\n", key)
		return err
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "acquired=true key=%s\n", key)
	return nil
}

func (a *app) unlockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock KEY",
		Short: "Release a lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := poorlock.NewKey(args[0])
			if err != nil {
				return err
			}
			err = a.locker.Unlock(cmd.Context(), key)
			if poorlock.IsAlreadyUnlocked(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "released=false key=%s\n", key)
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released=true key=%s\n", key)
			return nil
		},
	}
}

func (a *app) waitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait KEY",
		Short: "Wait up to --timeout for a lock and leave it held",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := poorlock.NewKey(args[0])
			if err != nil {
				return err
			}
			if err := a.locker.Wait(cmd.Context(), key, a.v.GetDuration("timeout")); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "acquired=true key=%s\n", key)
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 0, "How long to keep retrying (0 for a single attempt)")
	return cmd
}

func (a *app) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run KEY -- COMMAND [ARGS...]",
		Short: "Run a command while holding a lock",
		Long: `Wait up to --timeout for the lock, run the command, then release the lock.
The lock is released even when the command fails.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := poorlock.NewKey(args[0])
			if err != nil {
				return err
			}
			return a.locker.Do(cmd.Context(), key, a.v.GetDuration("timeout"), func(ctx context.Context) error {
				child := exec.CommandContext(ctx, args[1], args[2:]...)
				child.Stdin = cmd.InOrStdin()
				child.Stdout = cmd.OutOrStdout()
				child.Stderr = cmd.ErrOrStderr()
				a.logger.Debug("running command", "key", key.String(), "command", args[1])
				return child.Run()
			})
		},
	}
	cmd.Flags().Duration("timeout", 0, "How long to wait for the lock (0 for a single attempt)")
	return cmd
}
