package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x6d61/necrosis/internal/api"
	"github.com/0x6d61/necrosis/internal/notify"
	"github.com/0x6d61/necrosis/internal/report"
	"github.com/0x6d61/necrosis/internal/session"
	"github.com/0x6d61/necrosis/internal/upload"
	"github.com/0x6d61/necrosis/internal/workspace"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		sessionID string
		format    string
		output    string
		watchDir  string
	)

	cmd := &cobra.Command{
		Use:   "analyze [images...]",
		Short: "Upload leaf images for necrosis analysis",
		Long: `Analyze uploads JPEG and PNG leaf images and prints the lesion count and
necrosis percentage of each. Other file types are skipped.

With --session the images are appended to an existing session. With
--watch the command keeps running and submits every image dropped into
the directory until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && watchDir == "" {
				return fmt.Errorf("at least one image is required (or use --watch)")
			}
			if _, err := report.New(format); err != nil {
				return err
			}

			ctx := cmd.Context()
			sc, err := a.currentSession(ctx)
			if err != nil {
				return err
			}
			ws := a.newWorkspace(sc)

			if sessionID != "" {
				if err := ws.LoadSession(ctx, sessionID); err != nil {
					return err
				}
			}

			if len(args) > 0 {
				if err := a.stageFiles(ws, args); err != nil {
					return err
				}
				if err := a.submit(ctx, ws); err != nil {
					return err
				}
				if err := a.writeResults(ctx, exportOf(ws), format, output); err != nil {
					return err
				}
			}

			if watchDir == "" {
				return nil
			}
			return a.watchAndSubmit(ctx, ws, watchDir, format)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Append to an existing session")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format ("+strings.Join(report.Formats, ", ")+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file or directory (default stdout)")
	cmd.Flags().StringVarP(&watchDir, "watch", "w", "", "Watch a drop directory and submit new images")
	return cmd
}

func (a *app) newWorkspace(sc *session.Context) *workspace.Workspace {
	return workspace.New(a.client, sc,
		workspace.WithNotifier(a.board),
		workspace.WithLogger(a.log),
		workspace.WithPageSize(a.cfg.PageSize),
	)
}

// stageFiles loads paths and stages the accepted ones, reporting the rest.
func (a *app) stageFiles(ws *workspace.Workspace, paths []string) error {
	images, err := upload.Load(paths...)
	if err != nil {
		return err
	}
	accepted := upload.Filter(images)
	if skipped := len(images) - len(accepted); skipped > 0 {
		for _, img := range images {
			if !upload.Accepted(img.MIMEType) {
				fmt.Fprintf(a.err, "[!] Skipping %s (%s)\n", img.Name, img.MIMEType)
			}
		}
	}
	if len(accepted) == 0 {
		return fmt.Errorf("no supported images (JPEG or PNG) given")
	}
	ws.Stage(accepted)
	return nil
}

// submit sends the staged images. The workspace posts the toast; a
// failure is returned with its user-facing message.
func (a *app) submit(ctx context.Context, ws *workspace.Workspace) error {
	return submitMessage(a.send(ctx, ws))
}

func (a *app) send(ctx context.Context, ws *workspace.Workspace) error {
	fmt.Fprintf(a.err, "[*] Analyzing %d image(s)...\n", len(ws.Snapshot().Staged))
	return ws.Submit(ctx)
}

// submitMessage replaces a submit failure with its user-facing message.
func submitMessage(err error) error {
	if err == nil || errors.Is(err, workspace.ErrNothingStaged) || errors.Is(err, workspace.ErrSubmitInFlight) {
		return err
	}
	return errors.New(notify.Message(err, workspace.MsgAnalyzeFailed))
}

// keepWatching reports whether a failed drop batch should leave the
// watcher running. The batch stays staged and goes out with the next one.
func keepWatching(err error) bool {
	return api.IsRetryable(err) || errors.Is(err, workspace.ErrSubmitInFlight)
}

// watchAndSubmit submits every batch dropped into dir until ctx ends.
func (a *app) watchAndSubmit(ctx context.Context, ws *workspace.Workspace, dir, format string) error {
	batches := make(chan []upload.Image, 8)
	w, err := upload.NewWatcher(dir, func(imgs []upload.Image) {
		select {
		case batches <- imgs:
		case <-ctx.Done():
		}
	}, a.log)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	fmt.Fprintf(a.err, "[*] Watching %s for images (Ctrl+C to stop)\n", dir)

	for {
		select {
		case <-ctx.Done():
			return <-errc
		case err := <-errc:
			return err
		case imgs := <-batches:
			before := len(ws.Snapshot().Results)
			ws.Stage(imgs)
			if err := a.send(ctx, ws); err != nil {
				if !keepWatching(err) {
					return submitMessage(err)
				}
				a.log.Debug("drop batch failed", zap.Error(err))
				continue
			}
			exp := exportOf(ws)
			exp.Results = exp.Results[min(before, len(exp.Results)):]
			if err := a.writeResults(ctx, exp, format, ""); err != nil {
				return err
			}
		}
	}
}

// exportOf captures the active session for the reporters.
func exportOf(ws *workspace.Workspace) *report.Export {
	st := ws.Snapshot()
	return &report.Export{SessionID: st.SessionID, CreatedAt: st.CreatedAt, Results: st.Results}
}

// writeResults renders exp to stdout, a file, or a directory (using the
// dated default file name).
func (a *app) writeResults(ctx context.Context, exp *report.Export, format, output string) error {
	r, err := report.New(format)
	if err != nil {
		return err
	}
	if tr, ok := r.(*report.TextReporter); ok {
		tr.Colors = (output == "" || output == "-") && terminalWidth() > 0
	}

	if output == "" || output == "-" {
		return r.Generate(ctx, exp, a.out)
	}

	path := output
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		path = filepath.Join(output, report.FileName(exp, r))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := r.Generate(ctx, exp, f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(a.err, "[*] Results written to %s\n", path)
	return nil
}
