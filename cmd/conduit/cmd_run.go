package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"conduit/internal/logging"
	"conduit/pkg/claude"
	"conduit/pkg/config"
	"conduit/pkg/logmsg"
	"conduit/pkg/msgstore"
)

// newRunCmd runs the agent once in a directory and prints the normalized
// conversation stream, without the daemon.
func newRunCmd() *cobra.Command {
	var (
		configPath string
		dir        string
		sessionID  string
		plan       bool
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run the agent once and print normalized logs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := logging.New(debug)
			defer func() { _ = logger.Sync() }()

			if dir == "" {
				if dir, err = os.Getwd(); err != nil {
					return err
				}
			}
			prompt := strings.Join(args, " ")

			exec := &claude.Executor{
				Command: cfg.ClaudeCommand,
				Plan:    plan,
				Logger:  logger.Named("claude"),
			}

			ctx := cmd.Context()
			var child *claude.Child
			if sessionID != "" {
				child, err = exec.SpawnFollowUp(ctx, dir, prompt, sessionID)
			} else {
				child, err = exec.Spawn(ctx, dir, prompt)
			}
			if err != nil {
				return err
			}

			ms := msgstore.NewWithLogger(logger.Named("run"))
			exec.NormalizeLogs(ctx, ms, dir)

			printDone := make(chan struct{})
			go func() {
				defer close(printDone)
				for d := range ms.HistoryPlusStream(ctx) {
					switch d.Msg.Kind {
					case logmsg.KindJSONPatch:
						fmt.Fprintln(cmd.OutOrStdout(), string(d.Msg.Patch))
					case logmsg.KindSessionID:
						fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", d.Msg.Text)
					case logmsg.KindFinished:
						return
					}
				}
			}()

			runErr := child.Forward(ms)
			<-printDone
			ms.Close()
			return runErr
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file (default ~/"+config.DefaultPath+")")
	cmd.Flags().StringVar(&dir, "dir", "", "working directory for the agent (default cwd)")
	cmd.Flags().StringVar(&sessionID, "session", "", "resume this session, healing to the most recent one if stale")
	cmd.Flags().BoolVar(&plan, "plan", false, "stop the agent when it presents a plan")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}
