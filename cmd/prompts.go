package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/agentshub/internal/prompts"
)

// PromptsCommand inspects the built-in prompt templates.
func PromptsCommand() *cli.Command {
	return &cli.Command{
		Name:  "prompts",
		Usage: "Inspect and render prompt templates",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List template keys and the variables each one takes",
				Action: func(c *cli.Context) error {
					mgr := prompts.Default()
					for _, key := range mgr.Keys() {
						body, err := mgr.Template(key)
						if err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "%-20s %s\n", key, strings.Join(prompts.Variables(body), ", "))
					}
					return nil
				},
			},
			{
				Name:      "render",
				Usage:     "Render a template with variables",
				ArgsUsage: "KEY",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "var",
						Usage: "Template variable as name=value (repeatable)",
					},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("expected exactly one template key")
					}
					vars, err := parseVars(c.StringSlice("var"))
					if err != nil {
						return err
					}
					out, err := prompts.Default().Render(c.Args().First(), vars)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, out)
					return nil
				},
			},
		},
	}
}

func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, want name=value", pair)
		}
		vars[name] = value
	}
	return vars, nil
}
