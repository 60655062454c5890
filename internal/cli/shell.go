package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0x6d61/necrosis/internal/history"
	"github.com/0x6d61/necrosis/internal/notify"
	"github.com/0x6d61/necrosis/internal/profile"
	"github.com/0x6d61/necrosis/internal/upload"
	"github.com/0x6d61/necrosis/internal/viewer"
	"github.com/0x6d61/necrosis/internal/workspace"
)

// errQuit ends the shell loop.
var errQuit = errors.New("quit")

type shellCommand struct {
	usage string
	help  string
	run   func(ctx context.Context, args []string) error
}

// shell is the interactive landing screen.
type shell struct {
	a       *app
	ws      *workspace.Workspace
	history *history.Panel
	profile *profile.Panel
	zoom    viewer.Zoom
	cmds    map[string]shellCommand
}

func newShellCmd(a *app) *cobra.Command {
	var dropDir string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive analysis session",
		Long: `Shell opens an interactive workspace: stage images, submit them, page
through the results, zoom into annotated images and manage past sessions.
Type "help" for the list of commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sc, err := a.currentSession(ctx)
			if err != nil {
				return err
			}
			sh := newShell(a, a.newWorkspace(sc))

			if dropDir == "" {
				dropDir = a.cfg.DropDir
			}
			if dropDir != "" {
				stop, err := sh.watch(ctx, dropDir)
				if err != nil {
					return err
				}
				defer stop()
			}
			return sh.run(ctx)
		},
	}

	cmd.Flags().StringVarP(&dropDir, "drop", "d", "", "Stage images dropped into this directory")
	return cmd
}

func newShell(a *app, ws *workspace.Workspace) *shell {
	sh := &shell{
		a:       a,
		ws:      ws,
		history: history.New(a.client, ws, history.WithNotifier(a.board), history.WithLogger(a.log)),
		profile: a.profilePanel(ws.Session()),
	}
	sh.cmds = map[string]shellCommand{
		"help":     {"help", "Show this help", sh.help},
		"add":      {"add <files...>", "Stage images for analysis", sh.add},
		"staged":   {"staged", "List staged images", sh.staged},
		"remove":   {"remove <n>", "Unstage image n", sh.remove},
		"submit":   {"submit", "Analyze the staged images", sh.submit},
		"results":  {"results", "Show the current results page", sh.results},
		"next":     {"next", "Next results page (or next image when zoomed)", sh.next},
		"prev":     {"prev", "Previous results page (or previous image when zoomed)", sh.prev},
		"zoom":     {"zoom <n>", "Enlarge result n", sh.zoomIn},
		"close":    {"close", "Close the enlarged image", sh.closeZoom},
		"new":      {"new", "Start a new analysis session", sh.newSession},
		"history":  {"history", "List past sessions", sh.listHistory},
		"load":     {"load <session>", "Load a past session", sh.load},
		"delete":   {"delete <session>", "Delete a session", sh.deleteSession},
		"rename":   {"rename <session> <name...>", "Rename a session", sh.rename},
		"download": {"download <session> [file]", "Download a session's images as ZIP", sh.download},
		"export":   {"export [format] [path]", "Export the current results (csv, text, json)", sh.export},
		"profile":  {"profile [contact|organisation <value...>]", "Show or edit your profile", sh.showProfile},
		"logout":   {"logout", "Log out and leave the shell", sh.logout},
		"quit":     {"quit", "Leave the shell", sh.quit},
	}
	sh.cmds["exit"] = sh.cmds["quit"]
	sh.cmds["analyze"] = sh.cmds["submit"]
	sh.cmds["left"] = sh.cmds["prev"]
	sh.cmds["right"] = sh.cmds["next"]
	sh.cmds["esc"] = sh.cmds["close"]
	return sh
}

// watch stages images dropped into dir until stop is called.
func (sh *shell) watch(ctx context.Context, dir string) (stop func(), err error) {
	w, err := upload.NewWatcher(dir, func(imgs []upload.Image) {
		if n := sh.ws.Stage(imgs); n > 0 {
			sh.a.board.Notify(notify.Info, fmt.Sprintf("%d image(s) dropped. Type \"submit\" to analyze.", n))
		}
	}, sh.a.log)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			sh.a.log.Warn("drop folder watcher stopped", zap.Error(err))
		}
	}()
	fmt.Fprintf(sh.a.err, "[*] Watching %s for dropped images\n", dir)
	return func() { cancel(); <-done }, nil
}

func (sh *shell) run(ctx context.Context) error {
	sh.ws.Mount()
	if sh.profile.Refresh(ctx) {
		fmt.Fprintln(sh.a.out, infoStyle.Render("[*] Your profile is incomplete. Type \"profile\" to review it."))
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(sh.a.out, "necrosis> ")
		line, err := sh.a.in.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(sh.a.out)
				return nil
			}
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		c, ok := sh.cmds[strings.ToLower(fields[0])]
		if !ok {
			fmt.Fprintln(sh.a.out, errorStyle.Render(fmt.Sprintf("[!] Unknown command %q. Type \"help\".", fields[0])))
			continue
		}
		if err := c.run(ctx, fields[1:]); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintln(sh.a.out, errorStyle.Render("[!] "+err.Error()))
		}
	}
}

func (sh *shell) help(context.Context, []string) error {
	names := make([]string, 0, len(sh.cmds))
	seen := map[string]bool{}
	for name, c := range sh.cmds {
		if seen[c.usage] {
			continue
		}
		seen[c.usage] = true
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := sh.cmds[name]
		fmt.Fprintf(sh.a.out, "  %-44s %s\n", c.usage, c.help)
	}
	return nil
}

func (sh *shell) add(_ context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: add <files...>")
	}
	before := len(sh.ws.Snapshot().Staged)
	if err := sh.a.stageFiles(sh.ws, args); err != nil {
		return err
	}
	fmt.Fprintf(sh.a.out, "[*] %d image(s) staged.\n", len(sh.ws.Snapshot().Staged)-before)
	return nil
}

func (sh *shell) staged(context.Context, []string) error {
	st := sh.ws.Snapshot()
	if len(st.Staged) == 0 {
		fmt.Fprintln(sh.a.out, "No images staged. Use \"add <files...>\".")
		return nil
	}
	for i, img := range st.Staged {
		fmt.Fprintf(sh.a.out, "  %d. %s (%s, %d bytes)\n", i+1, img.Name, img.MIMEType, len(img.Data))
	}
	return nil
}

func (sh *shell) remove(_ context.Context, args []string) error {
	n, err := position(args)
	if err != nil {
		return err
	}
	return sh.ws.Remove(n - 1)
}

func (sh *shell) submit(ctx context.Context, _ []string) error {
	st := sh.ws.Snapshot()
	if len(st.Staged) > 0 {
		if err := sh.a.submit(ctx, sh.ws); err != nil {
			return err
		}
	} else if err := sh.ws.Submit(ctx); err != nil {
		return err
	}
	return sh.results(ctx, nil)
}

func (sh *shell) results(context.Context, []string) error {
	st := sh.ws.Snapshot()
	if st.Mode == workspace.ModeStaging {
		fmt.Fprintln(sh.a.out, "No results yet. Stage images with \"add\" and run \"submit\".")
		return nil
	}
	pager := sh.ws.Pager()
	n := len(st.Results)
	if n == 0 {
		fmt.Fprintln(sh.a.out, "This session has no results.")
		return nil
	}
	title := "Results"
	if st.SessionID != "" {
		title += " for session " + st.SessionID
	}
	fmt.Fprintln(sh.a.out, titleStyle.Render(title))
	start, _ := pager.Bounds(st.Page, n)
	for i, r := range sh.ws.PageResults() {
		fmt.Fprintln(sh.a.out, renderCard(start+i+1, r))
	}
	nav := fmt.Sprintf("Page %d of %d", st.Page+1, pager.TotalPages(n))
	if pager.HasPrev(st.Page) {
		nav = "< prev  " + nav
	}
	if pager.HasNext(st.Page, n) {
		nav += "  next >"
	}
	fmt.Fprintln(sh.a.out, dimStyle.Render(nav))
	if len(st.Staged) > 0 {
		fmt.Fprintf(sh.a.out, "[*] %d image(s) pending for this session. Type \"submit\" to add them.\n", len(st.Staged))
	}
	return nil
}

func (sh *shell) next(ctx context.Context, _ []string) error {
	if sh.zoom.IsOpen() {
		sh.zoom.Key("right", len(sh.ws.Snapshot().Results))
		return sh.showZoom()
	}
	sh.ws.NextPage()
	return sh.results(ctx, nil)
}

func (sh *shell) prev(ctx context.Context, _ []string) error {
	if sh.zoom.IsOpen() {
		sh.zoom.Key("left", len(sh.ws.Snapshot().Results))
		return sh.showZoom()
	}
	sh.ws.PrevPage()
	return sh.results(ctx, nil)
}

func (sh *shell) zoomIn(_ context.Context, args []string) error {
	n, err := position(args)
	if err != nil {
		return err
	}
	if err := sh.zoom.Open(sh.ws.Snapshot().Results, n-1); err != nil {
		if errors.Is(err, viewer.ErrNoImage) {
			return errors.New("this result has no image to enlarge")
		}
		return err
	}
	return sh.showZoom()
}

func (sh *shell) showZoom() error {
	results := sh.ws.Snapshot().Results
	i := sh.zoom.Index()
	if i >= len(results) {
		sh.zoom.Close()
		return nil
	}
	fmt.Fprintln(sh.a.out, titleStyle.Render(fmt.Sprintf("Image %d of %d", i+1, len(results))))
	fmt.Fprintln(sh.a.out, renderCard(i+1, results[i]))
	fmt.Fprintln(sh.a.out, dimStyle.Render("left/right to step, esc to close"))
	return nil
}

func (sh *shell) closeZoom(context.Context, []string) error {
	sh.zoom.Key("esc", 0)
	return nil
}

func (sh *shell) newSession(context.Context, []string) error {
	sh.zoom.Close()
	sh.ws.NewSession()
	return nil
}

func (sh *shell) listHistory(ctx context.Context, _ []string) error {
	if err := sh.history.Open(ctx); err != nil {
		return errors.New(notify.Message(err, history.MsgLoadFailed))
	}
	sessions := sh.history.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(sh.a.out, "No analysis sessions yet.")
		return nil
	}
	fmt.Fprint(sh.a.out, renderSessions(sessions))
	return nil
}

// resolve maps a session reference, fetching the list when it has not
// been loaded yet.
func (sh *shell) resolve(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", errors.New("a session number or id is required")
	}
	if len(sh.history.Sessions()) == 0 {
		if err := sh.history.Open(ctx); err != nil {
			return "", errors.New(notify.Message(err, history.MsgLoadFailed))
		}
		defer sh.history.Close()
	}
	return sh.history.Resolve(args[0])
}

func (sh *shell) load(ctx context.Context, args []string) error {
	id, err := sh.resolve(ctx, args)
	if err != nil {
		return err
	}
	sh.zoom.Close()
	if err := sh.history.SelectID(ctx, id); err != nil {
		return errors.New(notify.Message(err, workspace.MsgLoadFailed))
	}
	return sh.results(ctx, nil)
}

func (sh *shell) deleteSession(ctx context.Context, args []string) error {
	id, err := sh.resolve(ctx, args)
	if err != nil {
		return err
	}
	return sh.a.confirmDelete(ctx, sh.history, id, false)
}

func (sh *shell) rename(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: rename <session> <name...>")
	}
	id, err := sh.resolve(ctx, args[:1])
	if err != nil {
		return err
	}
	if err := sh.history.Rename(ctx, id, strings.Join(args[1:], " ")); err != nil {
		if errors.Is(err, history.ErrEmptyName) {
			return err
		}
		return errors.New(notify.Message(err, history.MsgRenameFailed))
	}
	return nil
}

func (sh *shell) download(ctx context.Context, args []string) error {
	id, err := sh.resolve(ctx, args)
	if err != nil {
		return err
	}
	path := ""
	if len(args) > 1 {
		path = args[1]
	}
	return sh.a.download(ctx, sh.history, id, path)
}

func (sh *shell) export(ctx context.Context, args []string) error {
	format, path := "csv", "."
	if len(args) > 0 {
		format = args[0]
	}
	if len(args) > 1 {
		path = args[1]
	}
	exp := exportOf(sh.ws)
	if len(exp.Results) == 0 {
		return errors.New("no results to export")
	}
	return sh.a.writeResults(ctx, exp, format, path)
}

// showProfile opens the profile panel unless an unsaved edit keeps it
// open already. A failed save leaves the panel open with the edits.
func (sh *shell) showProfile(ctx context.Context, args []string) error {
	opened := !sh.profile.IsOpen()
	if opened {
		sh.profile.Open(ctx)
	}
	closeIfOpened := func() {
		if opened {
			sh.profile.Close()
		}
	}
	if len(args) == 0 {
		printProfile(sh.a.out, sh.ws.Session(), sh.profile)
		closeIfOpened()
		return nil
	}
	if len(args) < 2 {
		closeIfOpened()
		return errors.New("usage: profile contact|organisation <value...>")
	}
	value := strings.Join(args[1:], " ")
	switch strings.ToLower(args[0]) {
	case "contact":
		sh.profile.SetContact(value)
	case "organisation", "organization":
		sh.profile.SetOrganisation(value)
	default:
		closeIfOpened()
		return fmt.Errorf("unknown profile field %q", args[0])
	}
	if err := sh.profile.Save(ctx); err != nil {
		return errors.New(profile.MsgUpdateFailed)
	}
	return nil
}

func (sh *shell) logout(ctx context.Context, _ []string) error {
	sh.zoom.Close()
	sh.a.logout(ctx, sh.ws)
	fmt.Fprintln(sh.a.out, successStyle.Render("[+] Logged out."))
	return errQuit
}

func (sh *shell) quit(context.Context, []string) error { return errQuit }

// position parses a 1-based item number.
func position(args []string) (int, error) {
	if len(args) == 0 {
		return 0, errors.New("an item number is required")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid item number %q", args[0])
	}
	return n, nil
}
