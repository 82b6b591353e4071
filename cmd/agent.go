package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/agentshub/internal/agents"
	"github.com/agentshub/internal/api"
	"github.com/agentshub/internal/batch"
	"github.com/agentshub/internal/chat"
)

var sessionFlag = &cli.StringFlag{
	Name:    "session",
	Aliases: []string{"s"},
	Usage:   "Continue the stored session `ID` instead of starting a new one",
}

// AskCommand returns the ask command
func AskCommand() *cli.Command {
	return &cli.Command{
		Name:  "ask",
		Usage: "Ask General Chat or the Knowledge Agent a question",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "agent",
				Aliases: []string{"a"},
				Usage:   "Agent to ask (\"General Chat\" or \"Knowledge Agent\")",
				Value:   agents.DefaultLabel,
			},
			sessionFlag,
		},
		ArgsUsage: "QUESTION",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("missing required argument: question")
			}
			question := strings.Join(c.Args().Slice(), " ")
			return withSession(c, "ask", func(ctx context.Context, hub *api.Hub, sess *chat.ChatSession) (api.Exchange, error) {
				return hub.Chat(ctx, sess, c.String("agent"), question)
			})
		},
	}
}

// ReviewCommand returns the review command
func ReviewCommand() *cli.Command {
	return codeCommand("review", "Review a source file for issues and fixes", agents.LabelCodeReview)
}

// AnalyzeCommand returns the analyze command
func AnalyzeCommand() *cli.Command {
	return codeCommand("analyze", "Score a source file for quality, maintainability and security", agents.LabelCodeAnalysis)
}

func codeCommand(name, usage, label string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			sessionFlag,
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Files processed concurrently when several are given",
				Value: 2,
			},
		},
		ArgsUsage: "FILE... (a directory is walked; use - for stdin)",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("missing required argument: file")
			}
			if c.NArg() == 1 && !isDir(c.Args().First()) {
				code, err := readSource(c.Args().First())
				if err != nil {
					return err
				}
				return withSession(c, name, func(ctx context.Context, hub *api.Hub, sess *chat.ChatSession) (api.Exchange, error) {
					return hub.Code(ctx, sess, label, code)
				})
			}
			return runCodeBatch(c, name, label)
		},
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// runCodeBatch sends every collected file to the agent, each in its own
// session, and prints the answers in argument order.
func runCodeBatch(c *cli.Context, kind, label string) error {
	files, skipped, err := batch.CollectSourceFiles(c.Args().Slice())
	if err != nil {
		return err
	}
	for _, path := range skipped {
		fmt.Fprintf(os.Stderr, "skipping %s\n", path)
	}
	if len(files) == 0 {
		return errors.New("no reviewable files")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer startRun(cfg, kind)()

	ctx := c.Context
	rt, err := newRuntime(ctx, cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()
	hub := rt.Hub()

	queue := batch.NewTaskQueue[api.Exchange](c.Int("workers"))
	for _, f := range files {
		queue.AddTask(batch.Task[api.Exchange]{
			ID: f.Path,
			Run: func(ctx context.Context) (api.Exchange, error) {
				sess, err := hub.CreateSession(ctx)
				if err != nil {
					return api.Exchange{}, err
				}
				return hub.Code(ctx, sess, label, f.Content)
			},
		})
	}

	failed := 0
	for _, res := range queue.ProcessAll(ctx) {
		var body string
		switch {
		case res.Err != nil:
			failed++
			body = res.Err.Error()
		case res.Value.Failed:
			failed++
			fallthrough
		default:
			body = res.Value.Assistant.Content
		}
		printMarkdown(os.Stdout, fmt.Sprintf("## %s\n\n%s", res.TaskID, body))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// LearnCommand returns the learn command
func LearnCommand() *cli.Command {
	return &cli.Command{
		Name:  "learn",
		Usage: "Run an adaptive learning session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "student",
				Usage:    "Student `ID`",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "topic",
				Usage:    "Topic to study",
				Required: true,
			},
			sessionFlag,
		},
		Action: func(c *cli.Context) error {
			return withSession(c, "learn", func(ctx context.Context, hub *api.Hub, sess *chat.ChatSession) (api.Exchange, error) {
				return hub.Learn(ctx, sess, c.String("student"), c.String("topic"))
			})
		},
	}
}

func readSource(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// withSession runs one exchange against a new or resumed session and prints
// the assistant's reply.
func withSession(c *cli.Context, kind string, run func(context.Context, *api.Hub, *chat.ChatSession) (api.Exchange, error)) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer startRun(cfg, kind)()

	ctx := c.Context
	rt, err := newRuntime(ctx, cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	hub := rt.Hub()
	var sess *chat.ChatSession
	if id := c.String("session"); id != "" {
		sess, err = rt.Sessions.Get(ctx, id)
	} else {
		sess, err = hub.CreateSession(ctx)
	}
	if err != nil {
		return err
	}

	ex, err := run(ctx, hub, sess)
	if err != nil {
		return err
	}
	printMarkdown(os.Stdout, ex.Assistant.Content)
	if store := cfg.Session.Store; store != "" && store != "memory" {
		fmt.Fprintf(os.Stderr, "session: %s\n", sess.SessionID)
	}
	if ex.Failed {
		return cli.Exit("", 1)
	}
	return nil
}
