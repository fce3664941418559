package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mensalize/billing-api/internal/domain/auth"
	"github.com/mensalize/billing-api/internal/domain/dashboard"
	"github.com/mensalize/billing-api/internal/domain/payment"
	"github.com/mensalize/billing-api/internal/domain/plan"
	"github.com/mensalize/billing-api/internal/domain/subscription"
	"github.com/mensalize/billing-api/internal/domain/user"
	"github.com/mensalize/billing-api/internal/jobs"
	"github.com/mensalize/billing-api/pkg/config"
	"github.com/mensalize/billing-api/pkg/db"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger
	Runner *db.TxRunner

	// Repositories
	UserRepo   user.Repository
	PlanRepo   plan.Repository
	SubRepo    subscription.Repository
	ChargeRepo payment.ChargeRepository
	PayRepo    payment.PaymentRepository
	LedgerRepo payment.LedgerRepository
	TokenRepo  auth.TokenRepository
	DashRepo   dashboard.Repository

	// Services
	UserSvc      user.Service
	PlanSvc      plan.Service
	Provisioning subscription.ProvisioningService
	Reconcile    payment.ReconciliationService
	DashboardSvc dashboard.Service
	Blacklist    auth.BlacklistService

	// Jobs
	Scheduler *jobs.Scheduler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	deps.initRepositories()
	deps.initServices()
	deps.initJobs()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Runner = db.NewTxRunner(d.DB.Pool, d.Logger)
	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initRepositories() {
	d.UserRepo = user.NewPostgresUserRepo(d.DB.Pool, d.Logger)
	d.PlanRepo = plan.NewPostgresPlanRepo(d.DB.Pool, d.Logger)
	d.SubRepo = subscription.NewPostgresSubscriptionRepo(d.DB.Pool, d.Logger)
	d.ChargeRepo = payment.NewPostgresChargeRepo(d.DB.Pool, d.Logger)
	d.PayRepo = payment.NewPostgresPaymentRepo(d.DB.Pool, d.Logger)
	d.LedgerRepo = payment.NewPostgresLedgerRepo(d.DB.Pool, d.Logger)
	d.TokenRepo = auth.NewPostgresTokenRepo(d.DB.Pool, d.Logger)
	d.DashRepo = dashboard.NewRepository(d.DB.Pool, d.Logger)
	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices() {
	dashSvc := dashboard.NewService(d.DashRepo, d.Config.Dashboard.CacheTTL, d.Logger)
	d.DashboardSvc = dashSvc

	d.UserSvc = user.NewService(d.UserRepo, d.Logger)
	d.PlanSvc = plan.NewService(d.PlanRepo, d.Logger)

	d.Provisioning = subscription.NewProvisioningService(
		d.Runner, d.SubRepo, d.ChargeRepo, d.UserRepo, dashSvc, d.Logger)
	d.Reconcile = payment.NewReconciliationService(
		d.Runner, d.UserRepo, d.ChargeRepo, d.PayRepo, d.LedgerRepo,
		d.SubRepo, dashSvc, d.Logger)
	d.Blacklist = auth.NewBlacklistService(d.TokenRepo, d.Logger)

	d.Logger.Info("services initialized")
}

func (d *Dependencies) initJobs() {
	scheduler := jobs.NewScheduler(d.Logger)

	scheduler.AddDaily(jobs.NewAgingJob(d.Runner, d.ChargeRepo, d.Logger), d.Config.Jobs.AgingHourUTC)
	scheduler.AddDaily(jobs.NewReminderJob(d.ChargeRepo, d.Logger), d.Config.Jobs.ReminderHourUTC)
	scheduler.AddDaily(jobs.NewBlacklistPruneJob(d.Blacklist, d.Logger), d.Config.Jobs.PruneHourUTC)

	d.Scheduler = scheduler
	d.Logger.Info("scheduled jobs registered")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
