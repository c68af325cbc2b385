package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/janus/internal/authorize"
	"github.com/dropDatabas3/janus/internal/cache"
	"github.com/dropDatabas3/janus/internal/config"
	"github.com/dropDatabas3/janus/internal/email"
	"github.com/dropDatabas3/janus/internal/external"
	httpapi "github.com/dropDatabas3/janus/internal/http"
	"github.com/dropDatabas3/janus/internal/identity"
	jwtx "github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/metrics"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/policy"
	"github.com/dropDatabas3/janus/internal/security/password"
	"github.com/dropDatabas3/janus/internal/session"
	"github.com/dropDatabas3/janus/internal/store/core"
	"github.com/dropDatabas3/janus/internal/store/memory"
	"github.com/dropDatabas3/janus/internal/store/pg"
	"github.com/dropDatabas3/janus/internal/token"
	migrations "github.com/dropDatabas3/janus/migrations/postgres"
)

var version = "dev"

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "janus",
		Short:         "janus identity provider core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("JANUS_CONFIG"), "path to config.yaml")

	root.AddCommand(serveCmd(&cfgPath))
	root.AddCommand(migrateCmd(&cfgPath))
	root.AddCommand(keygenCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger.Init(logger.Config{
				Env: cfg.App.Env, Level: cfg.Log.Level,
				ServiceName: "janus", Version: version,
			})
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
				return err
			}

			srv := httpapi.NewServer(buildDeps(cfg, store))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx, cfg.Server.Addr) })
			if err := g.Wait(); err != nil && err != http.ErrServerClosed {
				return err
			}
			logger.L().Info("shutdown complete")
			return nil
		},
	}
}

func buildDeps(cfg *config.Config, store core.Store) httpapi.Deps {
	c := cache.New(cache.Config{
		Driver:     cfg.Cache.Driver,
		Addr:       cfg.Cache.Redis.Addr,
		DB:         cfg.Cache.Redis.DB,
		DefaultTTL: cfg.OAuth.CodeTTL,
	})

	var sender email.Sender = email.DevLog{}
	if cfg.SMTP.Host != "" {
		sender = email.NewSMTP(email.SMTPConfig{
			Host: cfg.SMTP.Host, Port: cfg.SMTP.Port,
			Username: cfg.SMTP.Username, Password: cfg.SMTP.Password,
			From: cfg.SMTP.From,
		})
	}

	hasher := password.Argon2id{Params: password.DefaultParams}
	sessions := session.NewManager(session.Deps{Store: store, Window: cfg.Session.Window})
	authz := authorize.NewService(authorize.Deps{
		Store: store, Cache: c,
		SessionWindow: cfg.Session.Window,
		RequestTTL:    cfg.OAuth.AuthorizeTTL,
		CodeTTL:       cfg.OAuth.CodeTTL,
		CodeBytes:     cfg.OAuth.TokenBytes,
	})
	issuer := jwtx.NewIssuer(cfg.OAuth.Issuer, jwtx.StoreKeyProvider{Store: store}, cfg.OAuth.AccessTTL)
	engine := token.NewEngine(token.Deps{
		Store: store, Authorize: authz, Sessions: sessions,
		Issuer: issuer, AccessTTL: cfg.OAuth.AccessTTL,
		TokenBytes: cfg.OAuth.TokenBytes,
	})
	pol := policy.NewService(policy.Deps{
		Store: store, Hasher: hasher, Sender: sender, Sessions: sessions,
		Config: policy.Config{
			LockoutThreshold:  cfg.Security.LockoutThreshold,
			LockoutDuration:   cfg.Security.LockoutDuration,
			CodeTTL:           cfg.Security.CodeTTL,
			CodeMaxAttempts:   cfg.Security.CodeMaxAttempts,
			SignupTTL:         cfg.Security.SignupTTL,
			SignupMaxAttempts: cfg.Security.SignupMaxAttempts,
			TotpWindowSteps:   cfg.Security.TotpWindowSteps,
		},
	})
	ident := identity.NewService(identity.Deps{Store: store, Hasher: hasher})
	ext := external.NewService(external.Deps{
		Store: store,
		Upstream: external.Upstream{
			TokenURL:     cfg.Upstream.TokenURL,
			ClientID:     cfg.Upstream.ClientID,
			ClientSecret: cfg.Upstream.ClientSecret,
		},
	})

	return httpapi.Deps{
		Store: store, Sessions: sessions, Authorize: authz,
		Tokens: engine, Policy: pol, Identity: ident, External: ext,
	}
}

func openStore(ctx context.Context, cfg *config.Config) (core.Store, func(), error) {
	if cfg.Storage.Driver == "postgres" {
		s, err := pg.New(ctx, cfg.Storage.Postgres.DSN, pg.Config{
			MaxConns: cfg.Storage.Postgres.MaxOpenConns,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return memory.New(), func() {}, nil
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply embedded schema migrations to postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requires the postgres storage driver")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			s, err := pg.New(ctx, cfg.Storage.Postgres.DSN, pg.Config{})
			if err != nil {
				return err
			}
			defer s.Close()

			names, err := fs.Glob(migrations.FS, "*.sql")
			if err != nil {
				return err
			}
			sort.Strings(names)
			for _, name := range names {
				b, err := migrations.FS.ReadFile(name)
				if err != nil {
					return err
				}
				if _, err := s.Pool().Exec(ctx, string(b)); err != nil {
					return fmt.Errorf("migrate %s: %w", name, err)
				}
				fmt.Println("applied", name)
			}
			return nil
		},
	}
}

func keygenCmd(cfgPath *string) *cobra.Command {
	var activate bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate a P-256 signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			k, err := jwtx.GenerateECKey()
			if err != nil {
				return err
			}
			k.IsActive = activate

			if cfg.Storage.Driver == "postgres" {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				s, err := pg.New(ctx, cfg.Storage.Postgres.DSN, pg.Config{})
				if err != nil {
					return err
				}
				defer s.Close()
				if err := s.CreateJsonWebKey(ctx, k); err != nil {
					return err
				}
				fmt.Println("created key", k.ID)
				return nil
			}

			out, err := json.MarshalIndent(k, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&activate, "activate", true, "mark the key active for signing")
	return cmd
}
