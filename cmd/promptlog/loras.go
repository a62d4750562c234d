package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourorg/promptlog/internal/lora"
)

func newLorasCmd() *cobra.Command {
	var loras []string
	var file string
	var normalize bool
	cmd := &cobra.Command{
		Use:   "loras",
		Short: "Parse LoRA lines (name:strength_model:strength_clip)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(loras, "\n")
			if file != "" {
				data, err := readInput(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				text = strings.Join([]string{text, data}, "\n")
			}
			parsed := lora.Parse(text)
			if normalize {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), lora.Join(parsed))
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(parsed)
		},
	}
	cmd.Flags().StringArrayVar(&loras, "lora", nil, "LoRA line (repeatable)")
	cmd.Flags().StringVar(&file, "file", "", "file with one LoRA per line (- for stdin)")
	cmd.Flags().BoolVar(&normalize, "normalize", false, "print normalized lines instead of JSON")
	return cmd
}
