package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/evanschultz/barter/internal/adapters/identity"
	"github.com/evanschultz/barter/internal/adapters/server"
	"github.com/evanschultz/barter/internal/adapters/server/common"
	"github.com/evanschultz/barter/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// newPathsCommand prints resolved config and data locations without opening storage.
func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			layout, err := opts.resolveLayout()
			if err != nil {
				return err
			}
			out := opts.stdout
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", layout.ConfigFile(opts.configPath, opts.env.Config))
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", layout.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", layout.DBPath)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", layout.LogDir)
			return nil
		},
	}
}

// newServeCommand runs the HTTP, MCP, and metrics server.
func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		bind           string
		reconcileEvery time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, MCP tools, and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return opts.withRuntime(ctx, "serve", func(rt *runtimeEnv) error {
				if v := strings.TrimSpace(bind); v != "" {
					rt.cfg.Server.HTTPBind = v
				}
				return serve(ctx, rt, opts, reconcileEvery)
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "listen address (overrides server.http_bind)")
	cmd.Flags().DurationVar(&reconcileEvery, "reconcile-every", 0, "sweep unpropagated offers on this interval (0 disables)")
	return cmd
}

// serve wires transports over the runtime service and blocks until ctx ends.
func serve(ctx context.Context, rt *runtimeEnv, opts *rootOptions, reconcileEvery time.Duration) error {
	provider, err := newIdentityProvider(rt, opts.devMode)
	if err != nil {
		return err
	}

	if _, err := rt.service.ReconcilePending(ctx); err != nil {
		rt.logger.Warn("startup reconcile sweep failed", "err", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.logger.Info("server listening",
			"bind", rt.cfg.Server.HTTPBind,
			"api", rt.cfg.Server.APIEndpoint,
			"mcp", rt.cfg.Server.MCPEndpoint,
			"metrics", rt.cfg.Server.MetricsEndpoint,
		)
		return server.Run(gctx, server.Config{
			HTTPBind:        rt.cfg.Server.HTTPBind,
			APIEndpoint:     rt.cfg.Server.APIEndpoint,
			MCPEndpoint:     rt.cfg.Server.MCPEndpoint,
			MetricsEndpoint: rt.cfg.Server.MetricsEndpoint,
			ServerName:      opts.appName,
			ServerVersion:   version,
		}, server.Dependencies{
			Service: common.NewAppServiceAdapter(rt.service),
			Actors:  provider,
			Metrics: rt.metrics.Handler(),
			Ready:   rt.repo.Ping,
		})
	})
	if reconcileEvery > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(reconcileEvery)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if _, err := rt.service.ReconcilePending(gctx); err != nil {
						rt.logger.Warn("periodic reconcile sweep failed", "err", err)
					}
				}
			}
		})
	}
	return g.Wait()
}

// newIdentityProvider builds the token verifier. Dev mode falls back to an ephemeral secret.
func newIdentityProvider(rt *runtimeEnv, devMode bool) (*identity.Provider, error) {
	ttl, err := rt.cfg.Auth.TTL()
	if err != nil {
		return nil, err
	}
	secret := rt.cfg.Auth.TokenSecret
	if strings.TrimSpace(secret) == "" && devMode {
		secret = uuid.NewString()
		rt.logger.Warn("auth.token_secret unset; using an ephemeral dev secret")
	}
	provider, err := identity.NewProvider(identity.Config{
		Secret:              secret,
		Issuer:              rt.cfg.Auth.TokenIssuer,
		TTL:                 ttl,
		AllowHeaderIdentity: rt.cfg.Auth.AllowHeaderIdentity,
	})
	if err != nil {
		return nil, fmt.Errorf("configure identity provider: %w", err)
	}
	if rt.cfg.Auth.AllowHeaderIdentity {
		rt.logger.Warn("header identity enabled; X-Actor-* headers are trusted")
	}
	return provider, nil
}

// newReconcileCommand finishes item writes for every offer committed without them.
func newReconcileCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Finish outstanding item updates of decided offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd.Context(), "reconcile", func(rt *runtimeEnv) error {
				report, err := rt.service.ReconcilePending(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(opts.stdout, "reconciled: %d\n", len(report.Reconciled))
				for _, id := range report.Reconciled {
					_, _ = fmt.Fprintf(opts.stdout, "  %s\n", id)
				}
				if len(report.Failed) == 0 {
					return nil
				}
				_, _ = fmt.Fprintf(opts.stdout, "failed: %d\n", len(report.Failed))
				for id, ferr := range report.Failed {
					_, _ = fmt.Fprintf(opts.stdout, "  %s: %v\n", id, ferr)
				}
				return fmt.Errorf("%d offers still have outstanding item writes", len(report.Failed))
			})
		},
	}
}

// newItemsCommand groups item inspection subcommands.
func newItemsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect listed items",
	}
	var (
		owner  string
		asJSON bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List available items, or every item of one owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd.Context(), "items list", func(rt *runtimeEnv) error {
				var (
					items []domain.Item
					err   error
				)
				if owner = strings.TrimSpace(owner); owner != "" {
					items, err = rt.service.ListItemsOwnedBy(cmd.Context(), owner)
				} else {
					items, err = rt.service.ListAvailableItems(cmd.Context())
				}
				if err != nil {
					return err
				}
				views := make([]common.ItemView, 0, len(items))
				for _, item := range items {
					views = append(views, common.NewItemView(item))
				}
				if asJSON {
					return writeJSON(opts.stdout, views)
				}
				return writeItemTable(opts.stdout, views)
			})
		},
	}
	list.Flags().StringVar(&owner, "owner", "", "list every item owned by this user id")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.AddCommand(list)
	return cmd
}

// newOffersCommand groups offer inspection subcommands.
func newOffersCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offers",
		Short: "Inspect offers",
	}
	var (
		user      string
		direction string
		asJSON    bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List offers one user sent or received",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user = strings.TrimSpace(user)
			if user == "" {
				return fmt.Errorf("--user is required")
			}
			return opts.withRuntime(cmd.Context(), "offers list", func(rt *runtimeEnv) error {
				var (
					offers []domain.Offer
					err    error
				)
				switch strings.ToLower(strings.TrimSpace(direction)) {
				case "sent":
					offers, err = rt.service.ListSentOffers(cmd.Context(), user)
				case "received":
					offers, err = rt.service.ListReceivedOffers(cmd.Context(), user)
				default:
					return fmt.Errorf("unsupported --direction %q (want sent or received)", direction)
				}
				if err != nil {
					return err
				}
				views := make([]common.OfferView, 0, len(offers))
				for _, offer := range offers {
					views = append(views, common.NewOfferView(offer))
				}
				if asJSON {
					return writeJSON(opts.stdout, views)
				}
				return writeOfferTable(opts.stdout, views)
			})
		},
	}
	list.Flags().StringVar(&user, "user", "", "user id whose offers to list")
	list.Flags().StringVar(&direction, "direction", "received", "sent or received")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.AddCommand(list)
	return cmd
}

// newTokenCommand issues bearer tokens for operators and local clients.
func newTokenCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens",
	}
	var actor domain.Actor
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token for one user",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			layout, err := opts.resolveLayout()
			if err != nil {
				return err
			}
			cfg, _, err := opts.loadConfig(layout)
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Auth.TokenSecret) == "" {
				return fmt.Errorf("auth.token_secret is required to issue tokens")
			}
			ttl, err := cfg.Auth.TTL()
			if err != nil {
				return err
			}
			provider, err := identity.NewProvider(identity.Config{
				Secret: cfg.Auth.TokenSecret,
				Issuer: cfg.Auth.TokenIssuer,
				TTL:    ttl,
			})
			if err != nil {
				return err
			}
			token, expires, err := provider.Issue(actor)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			_, _ = fmt.Fprintln(opts.stdout, token)
			_, _ = fmt.Fprintf(opts.stderr, "expires: %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	issue.Flags().StringVar(&actor.ID, "id", "", "user id (token subject)")
	issue.Flags().StringVar(&actor.DisplayName, "name", "", "display name")
	issue.Flags().StringVar(&actor.Email, "email", "", "email address")
	cmd.AddCommand(issue)
	return cmd
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// newListTable builds the bordered table style shared by list commands.
func newListTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("62"))).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func writeItemTable(w io.Writer, items []common.ItemView) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "no items")
		return err
	}
	t := newListTable("ID", "Title", "Owner", "Status", "Created")
	for _, item := range items {
		t.Row(item.ID, item.Title, item.OwnerName, item.Status, item.CreatedAt.Format(time.RFC3339))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func writeOfferTable(w io.Writer, offers []common.OfferView) error {
	if len(offers) == 0 {
		_, err := fmt.Fprintln(w, "no offers")
		return err
	}
	t := newListTable("ID", "Offered", "Wanted", "Sender", "Receiver", "Status", "Pending writes")
	for _, offer := range offers {
		pending := ""
		if offer.PropagationPending {
			pending = "yes"
		}
		t.Row(offer.ID, offer.OfferedItemName, offer.WantedItemName, offer.SenderName, offer.ReceiverName, offer.Status, pending)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
