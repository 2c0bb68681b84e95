package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-concierge/internal/intent"
	"github.com/loqalabs/loqa-concierge/internal/locale"
)

func newInterpretCmd(_ *options) *cobra.Command {
	var (
		language string
		keywords string
	)
	cmd := &cobra.Command{
		Use:   "interpret <text>",
		Short: "Show which screen a phrase would navigate to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := locale.Parse(language)
			if err != nil {
				return err
			}
			table := intent.DefaultTable()
			if keywords != "" {
				custom, err := intent.LoadTable(keywords)
				if err != nil {
					return err
				}
				table = table.Override(custom)
			}
			got := intent.NewKeywordMatcher(table).Interpret(strings.Join(args, " "), lang)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), got)
			return err
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", string(locale.Default), "Language tag of the phrase")
	cmd.Flags().StringVar(&keywords, "keywords", "", "YAML keyword table layered over the built-in one")
	return cmd
}
