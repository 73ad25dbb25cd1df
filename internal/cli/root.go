package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fresherjobs/internal/apiclient"
	"fresherjobs/internal/model"
	"fresherjobs/internal/syncer"
)

// Opener builds an App from settings.
type Opener func(s Settings, log *slog.Logger) (*App, error)

type runner struct {
	configPath string
	open       Opener
	verbose    bool
	now        func() time.Time
}

func (r *runner) logger() *slog.Logger {
	level := slog.LevelError
	if r.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

type appFunc func(cmd *cobra.Command, args []string, app *App) error

// withApp opens a session and first replays anything queued by earlier
// sessions.
func (r *runner) withApp(fn appFunc) func(*cobra.Command, []string) error {
	return r.session(true, fn)
}

// withAppNoFlush opens a session for commands that flush on their own.
func (r *runner) withAppNoFlush(fn appFunc) func(*cobra.Command, []string) error {
	return r.session(false, fn)
}

func (r *runner) session(flush bool, fn appFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(r.configPath)
		if err != nil {
			return err
		}
		s, err := cfg.Settings()
		if err != nil {
			return err
		}
		app, err := r.open(s, r.logger())
		if err != nil {
			return fmt.Errorf("open client: %w", err)
		}
		defer func() { _ = app.Close() }()

		if flush {
			if res := app.FlushOnOpen(cmd.Context()); res.Synced > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Synced %d queued action(s).\n", res.Synced)
			}
		}
		return fn(cmd, args, app)
	}
}

// NewRootCommand builds the fresher command tree. configPath is the YAML
// settings file and open creates the client session for each command.
func NewRootCommand(configPath string, open Opener) *cobra.Command {
	r := &runner{configPath: configPath, open: open, now: time.Now}

	root := &cobra.Command{
		Use:   "fresher",
		Short: "Browse fresher jobs, internships and walk-ins from the terminal",
		Long: `fresher lists the opportunities you are eligible for, ranked by match.
Saves and tracked actions made offline are queued and replayed the next
time a command runs online, by "fresher sync", or by a running "fresher watch".`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "log client activity to stderr")

	root.AddCommand(
		r.feedCommand(),
		r.saveCommand(),
		r.trackCommand(),
		r.untrackCommand(),
		r.syncCommand(),
		r.watchCommand(),
		r.pendingCommand(),
		r.profileCommand(),
		r.configCommand(),
	)
	return root
}

func (r *runner) feedCommand() *cobra.Command {
	var (
		typ  string
		opts FeedOptions
	)
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "List eligible opportunities",
		Example: `  fresher feed
  fresher feed --type WALKIN --city pune
  fresher feed --closing-soon --page 2`,
		Args: cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, _ []string, app *App) error {
			if typ != "" {
				t, ok := model.ParseOpportunityType(strings.ToUpper(typ))
				if !ok {
					return fmt.Errorf("invalid --type %q: want JOB, INTERNSHIP or WALKIN", typ)
				}
				opts.Type = t
			}
			res, err := app.Feed(cmd.Context(), opts)
			var se *apiclient.StatusError
			if errors.As(err, &se) && se.StatusCode == http.StatusForbidden {
				fmt.Fprintln(cmd.OutOrStdout(), "Complete your profile to browse opportunities.")
				return nil
			}
			if err != nil {
				return withLoginHint(err)
			}
			renderFeed(cmd.OutOrStdout(), res, r.now())
			return nil
		}),
	}
	cmd.Flags().StringVar(&typ, "type", "", "JOB, INTERNSHIP or WALKIN")
	cmd.Flags().StringVar(&opts.City, "city", "", "only listings in this city")
	cmd.Flags().BoolVar(&opts.ClosingSoon, "closing-soon", false, "only listings closing within 3 days")
	cmd.Flags().BoolVar(&opts.SavedOnly, "saved", false, "only saved listings")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	return cmd
}

func (r *runner) saveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save <id>",
		Short: "Toggle the saved state of an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string, app *App) error {
			res, err := app.ToggleSave(cmd.Context(), args[0])
			if err != nil {
				return withLoginHint(err)
			}
			switch {
			case res.Queued:
				fmt.Fprintln(cmd.OutOrStdout(), "Offline: save toggle queued.")
			case res.Saved:
				fmt.Fprintln(cmd.OutOrStdout(), "Saved.")
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "Removed from saved.")
			}
			return nil
		}),
	}
}

func (r *runner) trackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "track <id> <VIEWED|APPLIED|PLANNING>",
		Short: "Track what you did with an opportunity",
		Args:  cobra.ExactArgs(2),
		RunE: r.withApp(func(cmd *cobra.Command, args []string, app *App) error {
			action, ok := model.ParseActionType(strings.ToUpper(args[1]))
			if !ok {
				return fmt.Errorf("invalid action %q: want VIEWED, APPLIED or PLANNING", args[1])
			}
			res, err := app.Track(cmd.Context(), args[0], action)
			if err != nil {
				return withLoginHint(err)
			}
			reportMutation(cmd, res, "Tracked "+string(action)+".")
			return nil
		}),
	}
}

func (r *runner) untrackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "untrack <id>",
		Short: "Clear the tracked action on an opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: r.withApp(func(cmd *cobra.Command, args []string, app *App) error {
			res, err := app.Untrack(cmd.Context(), args[0])
			if err != nil {
				return withLoginHint(err)
			}
			reportMutation(cmd, res, "Action cleared.")
			return nil
		}),
	}
}

func reportMutation(cmd *cobra.Command, res syncer.MutationResult, done string) {
	if res.Queued {
		fmt.Fprintln(cmd.OutOrStdout(), "Offline: queued for the next sync.")
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), done)
}

func withLoginHint(err error) error {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return fmt.Errorf("%w: log in again with: fresher config set token <token>", err)
	}
	return err
}

func (r *runner) syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay actions queued while offline",
		Args:  cobra.NoArgs,
		RunE: r.withAppNoFlush(func(cmd *cobra.Command, _ []string, app *App) error {
			renderFlush(cmd.OutOrStdout(), app.Sync(cmd.Context()))
			return nil
		}),
	}
}

func (r *runner) watchCommand() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay running and sync queued actions whenever the API comes back",
		Args:  cobra.NoArgs,
		RunE: r.withAppNoFlush(func(cmd *cobra.Command, _ []string, app *App) error {
			if interval <= 0 {
				return fmt.Errorf("invalid --interval %s: must be positive", interval)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching connectivity every %s. Press Ctrl-C to stop.\n", interval)
			app.Watch(ctx, interval, func(pending int) {
				fmt.Fprintf(out, "%s  %d pending.\n", r.now().Format(time.TimeOnly), pending)
			})
			fmt.Fprintf(out, "Stopped with %d pending.\n", len(app.Pending()))
			return nil
		}),
	}
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Second, "how often to check connectivity")
	return cmd
}

func (r *runner) pendingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show actions waiting to be synced",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, _ []string, app *App) error {
			renderPending(cmd.OutOrStdout(), app.Pending(), r.now())
			return nil
		}),
	}
}

func (r *runner) profileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show your profile and completion",
		Args:  cobra.NoArgs,
		RunE: r.withApp(func(cmd *cobra.Command, _ []string, app *App) error {
			p, cached, err := app.Profile(cmd.Context())
			if err != nil {
				return withLoginHint(err)
			}
			renderProfile(cmd.OutOrStdout(), p, cached)
			return nil
		}),
	}
}

func (r *runner) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change client settings",
		Long:  "Settings live in " + r.configPath + " and can be overridden with FRESHER_<KEY> environment variables.",
	}
	get := &cobra.Command{
		Use:       "get <key>",
		Short:     "Print a setting",
		Args:      cobra.ExactArgs(1),
		ValidArgs: Keys,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(r.configPath)
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting",
		Example: `  fresher config set api_url https://fresherjobs.example
  fresher config set token eyJhbGciOi...`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(r.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s.\n", args[0])
			return nil
		},
	}
	cmd.AddCommand(get, set)
	return cmd
}
