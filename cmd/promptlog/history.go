package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "history", Short: "Query the run history index"}
	cmd.AddCommand(newHistoryListCmd(root))
	cmd.AddCommand(newHistoryShowCmd(root))
	cmd.AddCommand(newHistoryDeleteCmd(root))
	return cmd
}

func newHistoryListCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{Use: "list", Short: "List recent runs", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := root.load(cmd)
		if err != nil {
			return err
		}
		st, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		runs, err := st.ListRuns(limit)
		if err != nil {
			return err
		}
		var data [][]string
		for _, r := range runs {
			data = append(data, []string{
				r.ID,
				r.CreatedAt.Format("2006-01-02 15:04"),
				r.Sampler + "/" + r.Scheduler,
				strconv.Itoa(r.Steps),
				strconv.FormatInt(r.Seed, 10),
				r.ModelType,
				r.ImagePath,
			})
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"ID", "CREATED", "SAMPLER", "STEPS", "SEED", "MODEL", "IMAGE"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
		table.SetAutoWrapText(false)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.AppendBulk(data)
		table.Render()
		return nil
	}}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs (0 for all)")
	return cmd
}

func newHistoryShowCmd(root *rootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{Use: "show", Short: "Show one run", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := root.load(cmd)
		if err != nil {
			return err
		}
		st, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		run, err := st.GetRun(id)
		if err != nil {
			return fmt.Errorf("run %s: %w", id, err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}}
	cmd.Flags().StringVar(&id, "id", "", "run id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newHistoryDeleteCmd(root *rootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{Use: "delete", Short: "Remove a run from the index (the sidecar file is kept)", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := root.load(cmd)
		if err != nil {
			return err
		}
		st, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.DeleteRun(id); err != nil {
			return fmt.Errorf("run %s: %w", id, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "deleted", id)
		return nil
	}}
	cmd.Flags().StringVar(&id, "id", "", "run id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
