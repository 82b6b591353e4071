package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/agentshub/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "agentshub.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file",
				Action: runConfigValidate,
			},
			{
				Name:  "check",
				Usage: "Report missing secrets and probe the configured backends",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "offline",
						Usage: "Skip probing Ollama and Chroma",
					},
				},
				Action: runConfigCheck,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	if _, err := loadConfig(c); err != nil {
		return err
	}
	fmt.Println("Configuration is valid")
	return nil
}

func runConfigCheck(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	result := CheckConfig(cfg)
	PrintConfigCheck(os.Stdout, result)

	unreachable := 0
	if !c.Bool("offline") {
		rt := &Runtime{Config: cfg}
		for _, probe := range rt.Probes() {
			res := probe(c.Context)
			if res.OK {
				fmt.Printf("✓ %s reachable at %s (%s)\n", res.Service, res.URL, res.Latency)
				continue
			}
			unreachable++
			fmt.Printf("❌ %s unreachable at %s: %s\n", res.Service, res.URL, res.Detail)
		}
	}

	if len(result.Missing) > 0 || unreachable > 0 {
		return cli.Exit("", 1)
	}
	return nil
}
