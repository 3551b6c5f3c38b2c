package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/orientador/internal/domain"
	"github.com/ashureev/orientador/internal/store"
)

// cli holds the flags shared by every command.
type cli struct {
	driver      string
	dbPath      string
	databaseURL string
	timeout     time.Duration

	// open is replaced in tests.
	open func(ctx context.Context, opts store.Options) (store.Repository, error)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCommand() *cobra.Command {
	c := &cli{open: store.New}
	return c.rootCommand()
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "orientadorctl",
		Short: "Inspect and maintain stored orientation interviews",
		Long: `orientadorctl reads the conversation store used by the orientation server.

Examples:
  orientadorctl list
  orientadorctl show "Ana Torres"
  orientadorctl transcript "Ana Torres"
  orientadorctl delete "Ana Torres"
  orientadorctl cleanup --ttl 720h`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&c.driver, "driver", envOr("STORE_DRIVER", "sqlite"), "Store driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&c.dbPath, "db", envOr("DB_PATH", "./data/orientador.db"), "SQLite database path")
	root.PersistentFlags().StringVar(&c.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "Timeout for each command")

	root.AddCommand(c.listCommand())
	root.AddCommand(c.showCommand())
	root.AddCommand(c.transcriptCommand())
	root.AddCommand(c.deleteCommand())
	root.AddCommand(c.cleanupCommand())
	return root
}

// withRepo opens the store for the duration of fn.
func (c *cli) withRepo(cmd *cobra.Command, fn func(ctx context.Context, repo store.Repository) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	repo, err := c.open(ctx, store.Options{
		Driver:      c.driver,
		SQLitePath:  c.dbPath,
		DatabaseURL: c.databaseURL,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = repo.Close() }()

	return fn(ctx, repo)
}

func (c *cli) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRepo(cmd, func(ctx context.Context, repo store.Repository) error {
				sessions, err := repo.ListSessions(ctx)
				if err != nil {
					return err
				}
				return writeSummaries(cmd.OutOrStdout(), sessions)
			})
		},
	}
}

func writeSummaries(w io.Writer, sessions []domain.SessionSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tSTATE\tPROGRESS\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\n", s.UserID, s.State, s.AnswerIndex, s.Total, s.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func (c *cli) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user>",
		Short: "Print a stored session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRepo(cmd, func(ctx context.Context, repo store.Repository) error {
				s, err := load(ctx, repo, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					UserID         string            `json:"user_id"`
					State          domain.State      `json:"state"`
					Terminated     bool              `json:"terminated"`
					Interests      string            `json:"interests,omitempty"`
					Questions      []domain.Question `json:"questions"`
					Answers        []domain.Answer   `json:"answers"`
					Recommendation string            `json:"recommendation,omitempty"`
					UpdatedAt      time.Time         `json:"updated_at"`
				}{
					UserID:         s.UserID,
					State:          s.State,
					Terminated:     s.Terminated,
					Interests:      s.Interests,
					Questions:      s.Questions,
					Answers:        s.Answers,
					Recommendation: s.Recommendation,
					UpdatedAt:      s.UpdatedAt,
				})
			})
		},
	}
}

func (c *cli) transcriptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transcript <user>",
		Short: "Print the conversation of a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRepo(cmd, func(ctx context.Context, repo store.Repository) error {
				s, err := load(ctx, repo, args[0])
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), domain.Transcript(s.History))
				return err
			})
		},
	}
}

func (c *cli) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRepo(cmd, func(ctx context.Context, repo store.Repository) error {
				if err := repo.DeleteSession(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func (c *cli) cleanupCommand() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions not updated within --ttl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}
			return c.withRepo(cmd, func(ctx context.Context, repo store.Repository) error {
				n, err := repo.CleanupExpiredSessions(ctx, ttl)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired sessions\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 720*time.Hour, "Age after which a session expires")
	return cmd
}

func load(ctx context.Context, repo store.Repository, userID string) (*domain.Session, error) {
	s, err := repo.LoadSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%s: %w", userID, domain.ErrSessionNotFound)
	}
	return s, nil
}
