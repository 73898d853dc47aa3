package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/judyrop/storefront/internal/auth"
	"github.com/judyrop/storefront/internal/catalog"
	"github.com/judyrop/storefront/internal/config"
	"github.com/judyrop/storefront/internal/database"
	"github.com/judyrop/storefront/internal/metrics"
	"github.com/judyrop/storefront/internal/orders"
	"github.com/judyrop/storefront/internal/seed"
	"github.com/judyrop/storefront/internal/session"
	"github.com/judyrop/storefront/models"
)

const (
	Version = "0.1.0"
	appName = "storefront"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Online storefront: catalog, cart and checkout",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(serveCmd(), migrateCmd(), seedCmd(), ordersCmd(), catalogCmd(), sessionsCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}

func newLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid LOG_LEVEL %q, using info", level)
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// app is the configuration, logger and migrated database shared by every
// command.
type app struct {
	cfg *config.Config
	log *logrus.Logger
	db  *gorm.DB
}

func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) sessionStore(ctx context.Context) (session.Store, error) {
	if a.cfg.RedisAddr == "" {
		a.log.Info("Using database session store")
		return session.NewDBStore(a.db, a.cfg.SessionTTL), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", a.cfg.RedisAddr, err)
	}
	a.log.Infof("Using redis session store at %s", a.cfg.RedisAddr)
	return session.NewRedisStore(client, a.cfg.SessionTTL), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			if a.cfg.OIDCClientID == "" {
				return errors.New("OIDC_CLIENT_ID is not set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sessions, err := a.sessionStore(ctx)
			if err != nil {
				return err
			}
			verifier, err := auth.NewOIDCVerifier(ctx, a.cfg.OIDCIssuer, a.cfg.OIDCClientID)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			router := SetupRouter(Deps{
				DB:       a.db,
				Config:   a.cfg,
				Log:      a.log,
				Metrics:  metrics.New(),
				Sessions: sessions,
				Verifier: verifier,
			})
			srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: router, ReadHeaderTimeout: 10 * time.Second}

			errCh := make(chan error, 1)
			go func() {
				a.log.Infof("Storefront listening on %s", a.cfg.HTTPPort)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.log.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			a.log.Info("Database migrated")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sample categories and products",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			data := seed.Default()
			if file != "" {
				if data, err = os.ReadFile(file); err != nil {
					return err
				}
			}
			f, err := seed.Parse(data)
			if err != nil {
				return err
			}
			svc := catalog.NewService(a.db, a.log, a.cfg.PageSize)
			res, err := seed.NewSeeder(svc, a.log).Run(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d categories and %d products\n", res.Categories, res.Products)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML catalog to load instead of the bundled sample")
	return cmd
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(id), nil
}

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "orders", Short: "Administer orders"}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-status <order-id> <status>",
		Short: "Change the status of an order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			return orders.NewService(a.db, a.log).SetStatus(cmd.Context(), id, models.OrderStatus(args[1]))
		},
	})
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "catalog", Short: "Administer the catalog"}

	var previous string
	setPrice := &cobra.Command{
		Use:   "set-price <product-id> <price>",
		Short: "Change the price of a product, optionally advertising a previous price",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", args[1], err)
			}
			var prev *decimal.Decimal
			if previous != "" {
				p, err := decimal.NewFromString(previous)
				if err != nil {
					return fmt.Errorf("invalid previous price %q: %w", previous, err)
				}
				prev = &p
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			return catalog.NewService(a.db, a.log, a.cfg.PageSize).SetPrice(cmd.Context(), id, price, prev)
		},
	}
	setPrice.Flags().StringVar(&previous, "previous", "", "Previous price shown as struck through")

	deleteCategory := &cobra.Command{
		Use:   "delete-category <category-id>",
		Short: "Delete a category together with its products",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			return catalog.NewService(a.db, a.log, a.cfg.PageSize).DeleteCategory(cmd.Context(), id)
		},
	}

	deleteProduct := &cobra.Command{
		Use:   "delete-product <product-id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := bootstrap()
			if err != nil {
				return err
			}
			return catalog.NewService(a.db, a.log, a.cfg.PageSize).DeleteProduct(cmd.Context(), id)
		},
	}

	cmd.AddCommand(setPrice, deleteCategory, deleteProduct)
	return cmd
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Maintain anonymous cart sessions"}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired session references from the database store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			n, err := session.NewDBStore(a.db, a.cfg.SessionTTL).Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired sessions\n", n)
			return nil
		},
	})
	return cmd
}
