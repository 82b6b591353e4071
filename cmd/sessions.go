package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
)

// SessionsCommand returns the sessions command
func SessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List or delete stored chat sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "delete",
				Usage: "Delete the session with this `ID`",
			},
		},
		Action: runSessions,
	}
}

func runSessions(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	rt, err := newRuntime(ctx, cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	if id := c.String("delete"); id != "" {
		if err := rt.Hub().DeleteSession(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Deleted session %s\n", id)
		return nil
	}

	infos, err := rt.Sessions.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTARTED\tLAST ACTIVITY\tMESSAGES")
	for _, s := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
			s.SessionID,
			s.StartTime.Local().Format(time.DateTime),
			s.LastActivity.Local().Format(time.DateTime),
			s.MessageCount)
	}
	return w.Flush()
}
