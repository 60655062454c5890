package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/0x6d61/necrosis/internal/api"
	"github.com/0x6d61/necrosis/internal/config"
	"github.com/0x6d61/necrosis/internal/notify"
	"github.com/0x6d61/necrosis/internal/session"
	"github.com/0x6d61/necrosis/internal/transport"
)

// Version information (set by build flags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app is the state shared by every command of one invocation.
type app struct {
	// flags
	configPath string
	apiURL     string
	statePath  string
	timeout    time.Duration
	verbose    bool

	cfg    *config.Config
	log    *zap.Logger
	client *api.Client
	store  session.Store
	board  *notify.Board

	in  *bufio.Reader
	out io.Writer
	err io.Writer
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "necrosis",
		Short: "Cassava leaf necrosis analysis client",
		Long: `necrosis - Cassava leaf necrosis analysis client

Upload leaf photographs to a necrosis analysis backend, browse the
lesion count and necrosis percentage of every image, and manage past
analysis sessions from the terminal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "Backend base URL (default "+config.DefaultAPIURL+")")
	cmd.PersistentFlags().StringVar(&a.statePath, "state", "", "Path of the local session database")
	cmd.PersistentFlags().DurationVar(&a.timeout, "timeout", 0, "Request timeout (default 30s)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(a),
		newSignupCmd(a),
		newResetPasswordCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newAnalyzeCmd(a),
		newHistoryCmd(a),
		newProfileCmd(a),
		newShellCmd(a),
	)

	return cmd
}

// Execute runs the root command with signal handling.
func Execute() error {
	return fang.Execute(
		context.Background(),
		NewRootCmd(),
		fang.WithVersion(fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)),
		fang.WithNotifySignal(os.Interrupt),
	)
}

// setup resolves configuration and opens the shared resources. Flags win
// over every other source.
func (a *app) setup(cmd *cobra.Command) error {
	a.in = bufio.NewReader(cmd.InOrStdin())
	a.out = cmd.OutOrStdout()
	a.err = cmd.ErrOrStderr()

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.APIURL = a.apiURL
	}
	if a.statePath != "" {
		cfg.StatePath = a.statePath
	}
	if a.timeout > 0 {
		cfg.Timeout = config.Duration(a.timeout)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(a.verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.log = logger

	tc, err := transport.NewClient(transport.ClientOptions{
		Timeout:            cfg.TimeoutDuration(),
		ProxyURL:           cfg.Proxy,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		UserAgent:          "necrosis-cli/" + version,
		MaxRPS:             cfg.MaxRPS,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}
	a.client = api.New(cfg.APIURL, tc, api.WithLogger(a.log))

	a.board = notify.NewBoard()
	a.board.Subscribe(func(t notify.Toast) {
		fmt.Fprintln(a.err, renderToast(t))
	})

	a.log.Debug("configuration resolved",
		zap.String("api_url", cfg.APIURL),
		zap.String("state_path", cfg.StatePath),
		zap.Duration("timeout", cfg.TimeoutDuration()))
	return nil
}

func (a *app) teardown() {
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.log != nil {
			a.log.Debug("closing session store", zap.Error(err))
		}
		a.store = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

// sessionStore opens the persisted store on first use.
func (a *app) sessionStore() (session.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if dir := filepath.Dir(a.cfg.StatePath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	s, err := session.NewSQLiteStore(a.cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store %q: %w", a.cfg.StatePath, err)
	}
	a.store = s
	return s, nil
}

// errNotLoggedIn is returned by commands that need a stored session.
var errNotLoggedIn = errors.New("not logged in (run `necrosis login`)")

// currentSession loads the stored session context.
func (a *app) currentSession(ctx context.Context) (*session.Context, error) {
	store, err := a.sessionStore()
	if err != nil {
		return nil, err
	}
	sc, err := store.Load(ctx)
	if err != nil {
		return nil, errNotLoggedIn
	}
	a.log.Debug("session loaded",
		zap.String("username", sc.Username),
		zap.String("token", session.RedactToken(sc.Token)))
	return sc, nil
}

// commandContext bounds a command by the configured timeout. Long-running
// commands (shell, watch) use cmd.Context() directly.
func (a *app) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 4*a.cfg.TimeoutDuration())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// The root pre-run needs no config for this.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "necrosis %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
