package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/query-reformulator/internal/core/prompts"
)

func newPromptsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect the prompt bank",
	}

	var family string
	list := &cobra.Command{
		Use:   "list",
		Short: "List prompt identifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bank, err := loadBank(opts)
			if err != nil {
				return err
			}
			ids := bank.List()
			if family != "" {
				ids = bank.Family(family)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	list.Flags().StringVar(&family, "family", "", "only list prompts of this method family")

	var withTemplate bool
	show := &cobra.Command{
		Use:   "show <prompt-id>",
		Short: "Print a prompt's metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bank, err := loadBank(opts)
			if err != nil {
				return err
			}
			var payload any
			if withTemplate {
				payload, err = bank.Spec(args[0])
			} else {
				payload, err = bank.Meta(args[0])
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}
	show.Flags().BoolVar(&withTemplate, "template", false, "include the template text")

	cmd.AddCommand(list, show)
	return cmd
}

func loadBank(opts *globalOptions) (*prompts.Bank, error) {
	path := opts.loadConfig().PromptBankPath
	if path == "" {
		return prompts.Default()
	}
	return prompts.LoadFile(path)
}
