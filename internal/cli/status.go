package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"robot_crypt/internal/config"
	"robot_crypt/internal/stats"
	"robot_crypt/internal/store"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the persisted stats report, open positions and recent trades",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statusTrades int

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVarP(&statusTrades, "trades", "n", 10, "number of recent trades to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	repo, err := openRepo(cmd.Context(), cfg.SQLiteDSN)
	if err != nil {
		return err
	}
	defer repo.Close()

	state, err := repo.LoadSnapshot(cmd.Context())
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	out := cmd.OutOrStdout()
	if state == nil {
		fmt.Fprintln(out, "还没有保存过运行状态")
		return nil
	}
	printState(out, state)

	trades, err := repo.ListTrades(cmd.Context(), statusTrades)
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	if len(trades) > 0 {
		fmt.Fprintln(out, "\n最近交易:")
		for _, t := range trades {
			fmt.Fprintf(out, "  %s %-10s %-6s %+.2f%% 盈亏=%+.4f 持有=%s\n",
				t.ExitTime.Local().Format("01-02 15:04"), t.Symbol, t.Reason,
				t.NetReturn*100, t.PnL, t.HoldFor.Round(time.Minute))
		}
	}
	return nil
}

func printState(out io.Writer, state *store.State) {
	fmt.Fprintf(out, "快照版本 v%d 保存于 %s 上次检查 %s\n\n",
		state.SchemaVersion, state.SavedAt.Local().Format(time.DateTime), state.LastCheck.Local().Format(time.DateTime))
	fmt.Fprintln(out, stats.BuildReport(state.Stats).String())

	symbols := make([]string, 0, len(state.Positions))
	for sym := range state.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	fmt.Fprintf(out, "\n持仓 (%d):\n", len(symbols))
	for _, sym := range symbols {
		p := state.Positions[sym]
		fmt.Fprintf(out, "  %-10s %s 入场=%.8f 数量=%.8f 开仓=%s\n",
			sym, p.Strategy, p.EntryPrice, p.Quantity, p.EntryTime.Local().Format(time.DateTime))
	}
	for sym, o := range state.Pending {
		fmt.Fprintf(out, "  %-10s 待对账 %s 客户端ID=%s\n", sym, o.Side, o.ClientOrderID)
	}
}
