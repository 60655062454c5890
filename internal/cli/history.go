package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/0x6d61/necrosis/internal/api"
	"github.com/0x6d61/necrosis/internal/history"
	"github.com/0x6d61/necrosis/internal/notify"
	"github.com/0x6d61/necrosis/internal/report"
	"github.com/0x6d61/necrosis/internal/workspace"
)

// historyEnv is a logged-in workspace with its history panel.
type historyEnv struct {
	ws    *workspace.Workspace
	panel *history.Panel
}

func (a *app) openHistory(ctx context.Context) (*historyEnv, error) {
	sc, err := a.currentSession(ctx)
	if err != nil {
		return nil, err
	}
	ws := a.newWorkspace(sc)
	panel := history.New(a.client, ws, history.WithNotifier(a.board), history.WithLogger(a.log))
	if err := panel.Open(ctx); err != nil {
		return nil, errors.New(notify.Message(err, history.MsgLoadFailed))
	}
	return &historyEnv{ws: ws, panel: panel}, nil
}

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"sessions"},
		Short:   "List and manage past analysis sessions",
		Long: `History lists your past analysis sessions. Sessions may be referred to
by their list position, their full id or a unique id prefix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, a)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List past analysis sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, a)
		},
	}

	cmd.AddCommand(
		list,
		newHistoryShowCmd(a),
		newHistoryLatestCmd(a),
		newHistoryDeleteCmd(a),
		newHistoryRenameCmd(a),
		newHistoryDownloadCmd(a),
	)
	return cmd
}

func runHistoryList(cmd *cobra.Command, a *app) error {
	ctx, cancel := a.commandContext(cmd)
	defer cancel()

	env, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	sessions := env.panel.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(a.out, "No analysis sessions yet.")
		return nil
	}
	fmt.Fprint(a.out, renderSessions(sessions))
	return nil
}

// renderSessions formats the history list as a table.
func renderSessions(sessions []api.AnalysisSession) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Name", "Session ID", "Created", "Images"})
	for i, s := range sessions {
		created := ""
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		t.AppendRow(table.Row{i + 1, history.DisplayName(s), s.SessionID, created, s.NumImages})
	}
	if w := terminalWidth(); w > 0 {
		t.SetAllowedRowLength(w)
	}
	return t.Render() + "\n"
}

func newHistoryShowCmd(a *app) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "show <session>",
		Short: "Show or export the results of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			env, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			id, err := env.panel.Resolve(args[0])
			if err != nil {
				return err
			}
			if err := env.panel.SelectID(ctx, id); err != nil {
				return errors.New(notify.Message(err, workspace.MsgLoadFailed))
			}
			return a.writeResults(ctx, exportOf(env.ws), format, output)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format ("+strings.Join(report.Formats, ", ")+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory (default stdout)")
	return cmd
}

func newHistoryLatestCmd(a *app) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the results of the most recent session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			sc, err := a.currentSession(ctx)
			if err != nil {
				return err
			}
			resp, err := a.client.LatestSessionResults(ctx, sc)
			if err != nil {
				if api.IsNotFound(err) {
					fmt.Fprintln(a.out, "No analysis sessions yet.")
					return nil
				}
				return err
			}
			exp := &report.Export{SessionID: resp.SessionID, CreatedAt: resp.CreatedAt, Results: resp.Results}
			return a.writeResults(ctx, exp, format, output)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format ("+strings.Join(report.Formats, ", ")+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory (default stdout)")
	return cmd
}

func newHistoryDeleteCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <session>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			env, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			id, err := env.panel.Resolve(args[0])
			if err != nil {
				return err
			}
			return a.confirmDelete(ctx, env.panel, id, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

// confirmDelete runs the panel's confirmation flow for id.
func (a *app) confirmDelete(ctx context.Context, panel *history.Panel, id string, yes bool) error {
	panel.RequestDelete(id)
	target, _ := panel.PendingDelete()

	if !yes {
		ok, err := a.confirm(fmt.Sprintf("Delete %q? This cannot be undone.", history.DisplayName(target)))
		if err != nil {
			panel.Cancel()
			return err
		}
		if !ok {
			panel.Cancel()
			fmt.Fprintln(a.out, "[*] Cancelled.")
			return nil
		}
	}
	if err := panel.Confirm(ctx); err != nil {
		msg := panel.DeleteErr()
		panel.Cancel()
		return errors.New(msg)
	}
	return nil
}

func newHistoryRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session> <name...>",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			env, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			id, err := env.panel.Resolve(args[0])
			if err != nil {
				return err
			}
			if err := env.panel.Rename(ctx, id, strings.Join(args[1:], " ")); err != nil {
				if errors.Is(err, history.ErrEmptyName) {
					return err
				}
				return errors.New(notify.Message(err, history.MsgRenameFailed))
			}
			return nil
		},
	}
}

func newHistoryDownloadCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <session>",
		Short: "Download the processed images of a session as a ZIP archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			env, err := a.openHistory(ctx)
			if err != nil {
				return err
			}
			id, err := env.panel.Resolve(args[0])
			if err != nil {
				return err
			}
			return a.download(ctx, env.panel, id, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default session_<id>_images.zip)")
	return cmd
}

// download saves a session's image archive to path.
func (a *app) download(ctx context.Context, panel *history.Panel, id, path string) error {
	if path == "" {
		path = "session_" + id + "_images.zip"
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	n, err := panel.Download(ctx, id, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	fmt.Fprintf(a.err, "[*] Saved %s (%s bytes)\n", path, strconv.FormatInt(n, 10))
	return nil
}
