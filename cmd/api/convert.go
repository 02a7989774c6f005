package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"kgr/api/internal/markup"
)

func newRenderCommand() *cobra.Command {
	var reader bool
	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Convert article Markdown to HTML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			var opts []markup.RendererOption
			if reader {
				opts = append(opts, markup.WithHeadingIDs(), markup.WithSanitizer(markup.ReaderPolicy()))
			}
			return writeLine(cmd, markup.NewRenderer(opts...).Render(source))
		},
	}
	cmd.Flags().BoolVar(&reader, "reader", false, "render for the reading view (heading ids, sanitized)")
	return cmd
}

func newMarkdownCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "markdown [file]",
		Short: "Convert an HTML fragment back to article Markdown",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fragment, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return writeLine(cmd, markup.ToMarkdown(fragment))
		},
	}
}

func newGraphCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "graph [file]",
		Short: "Print the graph blocks of an article as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(markup.ExtractGraphs(source))
		},
	}
}
