package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skosovsky/gemini"
)

func newChatCommand(a *app) *cobra.Command {
	var (
		stream        bool
		noTools       bool
		system        string
		maxIterations int
	)
	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Send one prompt and print the answer, running tools as requested",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := a.newGenerator(a.cfg, a.logger)
			if err != nil {
				return err
			}

			var reg *gemini.Registry
			if !noTools {
				if reg, err = newToolRegistry(a.clock); err != nil {
					return err
				}
				reg.Use(gemini.WithLogging(a.logger))
			}

			req := &gemini.GenerateContentRequest{
				Model:    a.cfg.Model,
				Contents: []*gemini.Content{gemini.UserText(strings.Join(args, " "))},
			}
			if system == "" {
				system = a.cfg.System
			}
			if system != "" {
				req.SystemInstruction = gemini.SystemInstruction(system)
			}

			iterations := gemini.DefaultMaxIterations
			if a.cfg.MaxIterations != nil {
				iterations = *a.cfg.MaxIterations
			}
			if cmd.Flags().Changed("max-iterations") {
				iterations = maxIterations
			}
			conv := gemini.NewConversation(gen, reg,
				gemini.WithMaxIterations(iterations),
				gemini.WithConversationLogger(a.logger),
			)

			out := cmd.OutOrStdout()
			if !stream {
				resp, err := conv.Run(cmd.Context(), req)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, resp.Text())
				return err
			}
			_, err = conv.RunStream(cmd.Context(), req, func(frag *gemini.GenerateContentResponse) error {
				_, err := fmt.Fprint(out, frag.Text())
				return err
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "print the answer as it is generated")
	cmd.Flags().BoolVar(&noTools, "no-tools", false, "do not offer the built-in tools")
	cmd.Flags().StringVar(&system, "system", "", "system instruction")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", gemini.DefaultMaxIterations, "maximum rounds of tool calls")
	return cmd
}

func newToolsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the declarations of the built-in tools as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := newToolRegistry(a.clock)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reg.Declarations())
		},
	}
}
