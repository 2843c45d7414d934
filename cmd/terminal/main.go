package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"kasirinaja/terminal/internal/api"
	"kasirinaja/terminal/internal/apperror"
	"kasirinaja/terminal/internal/cache"
	"kasirinaja/terminal/internal/config"
	"kasirinaja/terminal/internal/domain"
	"kasirinaja/terminal/internal/receipt"
	"kasirinaja/terminal/internal/session"
	"kasirinaja/terminal/internal/store"
	"kasirinaja/terminal/internal/store/memory"
	pgstore "kasirinaja/terminal/internal/store/postgres"
)

func main() {
	app := &cli.App{
		Name:  "terminal",
		Usage: "POS billing terminal",
		Commands: []*cli.Command{
			runCommand(),
			invoiceCommand(),
			couponsCommand(),
			attemptsCommand(),
			heldCommand(),
			auditCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// runtime is what every command shares: config, logger, authenticated
// client, journal and lookup cache.
type runtime struct {
	cfg     config.Config
	log     *logrus.Logger
	client  *api.Client
	auth    session.AuthContext
	repo    store.Repository
	cache   cache.LookupCache
	closers []func() error
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if cfg.EnvFileErr != nil {
		logger.WithError(cfg.EnvFileErr).Warn(".env not loaded, using process environment")
	}
	if err := validateSecurityConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid security configuration: %w", err)
	}

	rt := &runtime{cfg: cfg, log: logger}

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startCtx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		rt.repo = pg
		rt.closers = append(rt.closers, pg.Close)
		logger.Info("journal: postgres")
	} else {
		rt.repo = memory.New()
		logger.Info("journal: in-memory")
	}

	rt.cache = cache.NoopLookupCache{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisLookupCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "terminal:"+cfg.StoreID)
		if err := redisCache.Ping(startCtx); err != nil {
			logger.WithError(err).Warn("redis unavailable, using noop cache")
		} else {
			rt.cache = redisCache
			rt.closers = append(rt.closers, redisCache.Close)
			logger.Info("cache: redis")
		}
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.APIRatePerSecond, nil, logger)
	auth, err := authenticate(startCtx, client, cfg)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.auth = auth
	rt.client = client.WithAuth(auth)
	return rt, nil
}

func authenticate(ctx context.Context, client *api.Client, cfg config.Config) (session.AuthContext, error) {
	if cfg.APIToken != "" {
		return session.New(cfg.APIToken, "", cfg.APIUsername)
	}
	if cfg.APIUsername == "" || cfg.APIPassword == "" {
		return session.AuthContext{}, fmt.Errorf("set API_TOKEN or API_USERNAME and API_PASSWORD")
	}
	resp, err := client.Login(ctx, domain.LoginRequest{Username: cfg.APIUsername, Password: cfg.APIPassword})
	if err != nil {
		return session.AuthContext{}, loginError(err)
	}
	return session.FromLogin(resp, cfg.APIUsername)
}

func loginError(err error) error {
	switch {
	case errors.Is(err, apperror.ErrUnauthorized):
		return fmt.Errorf("login rejected, check API_USERNAME and API_PASSWORD: %w", err)
	case !apperror.IsAppError(err):
		return fmt.Errorf("login: backend unreachable: %w", err)
	default:
		return fmt.Errorf("login: %w", err)
	}
}

func (rt *runtime) close() {
	for _, closeFn := range rt.closers {
		if err := closeFn(); err != nil {
			rt.log.WithError(err).Warn("close failed")
		}
	}
}

func withRuntime(action func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := newRuntime(c.Context)
		if err != nil {
			return err
		}
		defer rt.close()
		return action(c, rt)
	}
}

func invoiceID(c *cli.Context) (int64, error) {
	raw := c.Args().First()
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invoice id required, got %q", raw)
	}
	return id, nil
}

func invoiceCommand() *cli.Command {
	return &cli.Command{
		Name:  "invoice",
		Usage: "work with invoices already on the backend",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "print an invoice as a receipt",
				ArgsUsage: "<id>",
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					id, err := invoiceID(c)
					if err != nil {
						return err
					}
					inv, err := rt.client.GetInvoice(c.Context, id)
					if err != nil {
						return err
					}
					printInvoice(c.App.Writer, inv)
					return nil
				}),
			},
			{
				Name:      "receipt",
				Usage:     "write an ESC/POS receipt for a thermal printer",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "output file (default receipt-<number>.bin)"},
					&cli.BoolFlag{Name: "drawer", Usage: "include the cash drawer pulse"},
				},
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					id, err := invoiceID(c)
					if err != nil {
						return err
					}
					inv, err := rt.client.GetInvoice(c.Context, id)
					if err != nil {
						return err
					}
					r, err := receipt.Build(inv, receipt.Options{
						ShopName:   rt.cfg.ShopName,
						TerminalID: rt.cfg.TerminalID,
						OpenDrawer: c.Bool("drawer"),
					})
					if err != nil {
						return err
					}
					out := c.String("out")
					if out == "" {
						out = r.FileName
					}
					if err := os.WriteFile(out, r.ESCPOS, 0o644); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, r.Preview)
					fmt.Fprintf(c.App.Writer, "wrote %s\n", out)
					return nil
				}),
			},
			{
				Name:      "pdf",
				Usage:     "download the invoice PDF",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{&cli.StringFlag{Name: "out", Usage: "output file (default invoice-<id>.pdf)"}},
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					id, err := invoiceID(c)
					if err != nil {
						return err
					}
					pdf, err := rt.client.InvoicePDF(c.Context, id)
					if err != nil {
						return err
					}
					out := c.String("out")
					if out == "" {
						out = fmt.Sprintf("invoice-%d.pdf", id)
					}
					if err := os.WriteFile(out, pdf, 0o644); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "wrote %s (%d bytes)\n", out, len(pdf))
					return nil
				}),
			},
			{
				Name:      "email",
				Usage:     "ask the backend to email the invoice to its customer",
				ArgsUsage: "<id>",
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					id, err := invoiceID(c)
					if err != nil {
						return err
					}
					resp, err := rt.client.SendInvoiceEmail(c.Context, id)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, resp.Message)
					return nil
				}),
			},
		},
	}
}

func couponsCommand() *cli.Command {
	return &cli.Command{
		Name:  "coupons",
		Usage: "list coupons eligible at an amount",
		Flags: []cli.Flag{&cli.StringFlag{Name: "amount", Required: true}},
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			amount, err := decimal.NewFromString(c.String("amount"))
			if err != nil {
				return fmt.Errorf("invalid amount: %w", err)
			}
			coupons, err := rt.client.AvailableCoupons(c.Context, amount)
			if err != nil {
				return err
			}
			if len(coupons) == 0 {
				fmt.Fprintln(c.App.Writer, "no coupons available")
			}
			for _, cp := range coupons {
				fmt.Fprintf(c.App.Writer, "%d\t%s\t-%s\n", cp.ID, cp.Label(), cp.CalculatedDiscount.StringFixed(2))
			}
			return nil
		}),
	}
}

func attemptsCommand() *cli.Command {
	return &cli.Command{
		Name:      "attempts",
		Usage:     "list checkout attempts that still need reconciliation, or show one",
		ArgsUsage: "[attempt id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key", Usage: "show the attempt sent with this idempotency key"},
		},
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			if id, key := c.Args().First(), c.String("key"); id != "" || key != "" {
				a, err := findAttempt(c.Context, rt.repo, id, key)
				if err != nil {
					return err
				}
				printAttempt(c.App.Writer, *a)
				return nil
			}
			attempts, err := rt.repo.ListUnfinishedAttempts(c.Context, rt.cfg.StoreID, rt.cfg.TerminalID, 100)
			if err != nil {
				return err
			}
			if len(attempts) == 0 {
				fmt.Fprintln(c.App.Writer, "no unfinished attempts")
			}
			for _, a := range attempts {
				fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\t%s\tinvoice=%s\tpayment=%s\t%s\n",
					a.CreatedAt.Format(time.RFC3339), a.ID, a.State, a.TotalAmount.StringFixed(2),
					a.InvoiceNumber, a.PaymentID, a.LastError)
			}
			return nil
		}),
	}
}

// findAttempt looks an attempt up by id, or by the idempotency key the
// backend saw when id is empty.
func findAttempt(ctx context.Context, repo store.Repository, id, key string) (*domain.CheckoutAttempt, error) {
	if id != "" {
		a, err := repo.FindAttempt(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("attempt %s: %w", id, err)
		}
		return a, nil
	}
	a, err := repo.FindAttemptByIdempotency(ctx, strings.TrimSpace(key))
	if err != nil {
		return nil, fmt.Errorf("attempt with key %s: %w", key, err)
	}
	return a, nil
}

func heldCommand() *cli.Command {
	return &cli.Command{
		Name:  "held",
		Usage: "list carts parked on this terminal",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			held, err := rt.repo.ListHeldCarts(c.Context, rt.cfg.StoreID, rt.cfg.TerminalID, 200)
			if err != nil {
				return err
			}
			printHeld(c.App.Writer, held)
			return nil
		}),
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "show the local audit trail",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "since", Value: 24 * time.Hour, Usage: "how far back to look"},
			&cli.IntFlag{Name: "limit", Value: 200},
		},
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			to := time.Now().UTC()
			logs, err := rt.repo.ListAuditLogs(c.Context, rt.cfg.StoreID, to.Add(-c.Duration("since")), to, c.Int("limit"))
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				fmt.Fprintln(c.App.Writer, "no audit entries")
			}
			for _, l := range logs {
				fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\t%s:%s\t%s\t%s\n",
					l.CreatedAt.Format(time.RFC3339), l.TerminalID, l.ActorUsername, l.EntityType, l.EntityID, l.Action, l.Detail)
			}
			return nil
		}),
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if cfg.ManagerPIN == "" {
		return nil
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true, "696969": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}
	return nil
}
