package cli

import (
	"errors"
	"fmt"

	"robot_crypt/internal/config"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the persisted snapshot, trade journal and cycle history",
	Long: `Delete all persisted data. The next run starts from INITIAL_CAPITAL with
no open positions.

Open positions on the exchange are NOT closed.

Example:
  robot-crypt reset --yes`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

var resetConfirm bool

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "confirm deletion")
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetConfirm {
		return errors.New("refusing to reset without --yes")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	repo, err := openRepo(cmd.Context(), cfg.SQLiteDSN)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.ResetAllData(cmd.Context()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "所有数据已清空")
	return nil
}
