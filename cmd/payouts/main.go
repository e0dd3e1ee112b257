package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/api/auth"
	"github.com/ajolla/ottowrite-sub001/internal/app"
	"github.com/ajolla/ottowrite-sub001/internal/config"
	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/referral"
	"github.com/ajolla/ottowrite-sub001/internal/repository"
	"github.com/ajolla/ottowrite-sub001/internal/scheduler"
	"github.com/ajolla/ottowrite-sub001/internal/version"

	"github.com/spf13/cobra"
)

var configDir string

func main() {
	rootCmd := &cobra.Command{
		Use:          "payouts",
		Short:        "Referral commission jobs: approvals, payout batching and code expiry",
		Version:      version.GetVersion(),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "./configs", "directory holding config.yaml")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(onceCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(expireCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every command needs: configuration, logger and open
// connections. close must be deferred by the caller.
type env struct {
	cfg     *config.Config
	log     *logger.Logger
	infra   *app.Infra
	service *referral.Service
}

func setup(withService bool) (*env, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.App.LogLevel, cfg.App.Environment)

	infra, err := app.Open(cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	e := &env{cfg: cfg, log: log, infra: infra}
	if withService {
		publisher, err := infra.Publisher()
		if err != nil {
			e.close()
			return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
		}
		e.service = infra.Service(publisher)
	}
	return e, nil
}

func (e *env) close() {
	if err := e.infra.Close(); err != nil {
		e.log.Warn("Error closing connections: %v", err)
	}
	e.log.Sync()
}

func (e *env) newScheduler() *scheduler.Scheduler {
	return scheduler.NewScheduler(e.service, schedulerConfig(e.cfg), e.log)
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	sc := scheduler.DefaultConfig()
	sc.HoldPeriod = holdPeriod(cfg)
	sc.ApproveSchedule = cfg.Payout.ApproveSchedule
	sc.PayoutSchedule = cfg.Payout.PayoutSchedule
	sc.ExpirySchedule = cfg.Payout.ExpirySchedule
	return sc
}

func holdPeriod(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Commission.HoldDays) * 24 * time.Hour
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the cron jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := e.newScheduler()
			if err := s.Start(); err != nil {
				return err
			}
			e.log.Info("Payout runner %s started", version.GetVersion())

			<-ctx.Done()
			e.log.Info("Shutting down payout runner...")
			s.Stop()
			return nil
		},
	}
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run expiry, approvals and payout batching once, in that order",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			defer e.close()

			return e.newScheduler().RunNow(cmd.Context())
		},
	}
}

func scheduleCmd() *cobra.Command {
	var partnerID uint
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Batch approved commissions into payouts",
		Long: `Batch approved, unclaimed commissions into pending payout batches.

Without --partner every active partner with claimable commissions is
scheduled; partners below the minimum payout are skipped.

Examples:
  payouts schedule
  payouts schedule --partner 42 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			if partnerID != 0 {
				batch, err := e.service.SchedulePayout(ctx, partnerID)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(batch)
				}
				fmt.Printf("Scheduled payout %d for partner %d: %d across %d conversions\n",
					batch.ID, batch.PartnerID, batch.Amount, len(batch.ConversionIDs))
				return nil
			}

			summary, err := e.service.ScheduleAll(ctx)
			if summary != nil {
				if asJSON {
					if perr := printJSON(summary); perr != nil {
						return perr
					}
				} else {
					for _, b := range summary.Batches {
						fmt.Printf("partner %d: payout %d, amount %d, %d conversions\n",
							b.PartnerID, b.ID, b.Amount, len(b.ConversionIDs))
					}
					fmt.Printf("%d batches scheduled, %d partners skipped\n", len(summary.Batches), summary.Skipped)
				}
			}
			return err
		},
	}

	cmd.Flags().UintVarP(&partnerID, "partner", "p", 0, "schedule a single partner")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "output as JSON")
	return cmd
}

func approveCmd() *cobra.Command {
	var hold time.Duration

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve pending commissions past the hold period",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			defer e.close()

			if !cmd.Flags().Changed("hold") {
				hold = holdPeriod(e.cfg)
			}
			n, err := e.service.AutoApprove(cmd.Context(), hold)
			if err != nil {
				return err
			}
			fmt.Printf("Approved %d commissions older than %v\n", n, hold)
			return nil
		},
	}

	cmd.Flags().DurationVar(&hold, "hold", 0, "override the configured hold period")
	return cmd
}

func expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-codes",
		Short: "Mark active codes past their expiry as expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			defer e.close()

			n, err := e.service.ExpireCodes(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Expired %d codes\n", n)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(false)
			if err != nil {
				return err
			}
			defer e.close()

			if err := repository.AutoMigrate(e.infra.DB); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			fmt.Println("Database schema is up to date")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for a backend service or end user",
		Long: `Issue a signed API token.

Service tokens may record conversions for any user; user tokens only for
their own subject.

Examples:
  payouts token --subject billing --role service
  payouts token --subject user-123 --role user --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configDir)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			granted := make([]auth.Role, 0, len(roles))
			for _, r := range roles {
				role := auth.Role(r)
				switch role {
				case auth.RoleService, auth.RoleUser, auth.RoleViewer, auth.RoleAdmin, auth.RoleSuperAdmin:
					granted = append(granted, role)
				default:
					return fmt.Errorf("unknown role %q", r)
				}
			}

			if ttl <= 0 {
				ttl = cfg.TokenTTL()
			}
			token, err := auth.NewJWTManager(cfg.Admin.JWTSecret, ttl).IssueToken(subject, granted...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "", "token subject (service name or user id)")
	cmd.Flags().StringSliceVarP(&roles, "role", "r", []string{string(auth.RoleService)}, "roles to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to admin.token_ttl_hours)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
