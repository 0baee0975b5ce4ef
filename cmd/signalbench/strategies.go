package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/newthinker/signalbench/internal/app"
	"github.com/newthinker/signalbench/internal/strategy"
	"github.com/spf13/cobra"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List available strategies",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine := strategy.NewEngine()
		app.RegisterDefaultStrategies(engine)
		if err := engine.Configure(cfg.StrategyConfigs()); err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tLOOKBACK\tVOLATILITY\tDESCRIPTION\t")
		fmt.Fprintln(w, "----\t--------\t----------\t-----------\t")
		for _, s := range engine.GetAll() {
			req := s.RequiredData()
			fmt.Fprintf(w, "%s\t%d\t%t\t%s\t\n", s.Name(), req.Lookback, req.Volatility, s.Description())
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}
