package main

import (
	"context"
	"time"

	"github.com/factuurly/factuurly/internal/api"
	v1 "github.com/factuurly/factuurly/internal/api/v1"
	"github.com/factuurly/factuurly/internal/cache"
	"github.com/factuurly/factuurly/internal/config"
	"github.com/factuurly/factuurly/internal/httpclient"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/notify"
	"github.com/factuurly/factuurly/internal/postgres"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/provider/banktransfer"
	"github.com/factuurly/factuurly/internal/provider/mollie"
	"github.com/factuurly/factuurly/internal/provider/paypal"
	"github.com/factuurly/factuurly/internal/provider/stripecheckout"
	"github.com/factuurly/factuurly/internal/provider/tikkie"
	"github.com/factuurly/factuurly/internal/pubsub"
	"github.com/factuurly/factuurly/internal/pubsub/memory"
	"github.com/factuurly/factuurly/internal/reconcile"
	"github.com/factuurly/factuurly/internal/repository"
	"github.com/factuurly/factuurly/internal/sentry"
	"github.com/factuurly/factuurly/internal/service"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/factuurly/factuurly/internal/validator"
	"github.com/factuurly/factuurly/internal/webhook"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Monitoring
			sentry.NewSentryService,

			// Cache
			cache.Initialize,
			func(c *cache.InMemoryCache) cache.Cache { return c },

			// Postgres
			postgres.NewClient,

			// HTTP Client
			httpclient.NewDefaultClient,

			// PubSub
			memory.NewPubSub,
			func(ps pubsub.PubSub) pubsub.Publisher { return ps },
			func(ps pubsub.PubSub) pubsub.Subscriber { return ps },

			// Repositories
			repository.NewInvoiceRepository,
			repository.NewPaymentRepository,
		),
	)

	// Payment rails and reconciliation
	opts = append(opts,
		fx.Provide(
			provideRegistry,
			notify.NewNotifier,
			notify.NewSink,
			reconcile.NewEngine,
			reconcile.NewPoller,
			webhook.NewService,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,
			service.NewInvoiceService,
			service.NewPaymentService,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideRegistry(
	cfg *config.Configuration,
	client httpclient.Client,
	log *logger.Logger,
) *provider.Registry {
	return provider.NewRegistry(
		stripecheckout.NewAdapter(cfg, log),
		tikkie.NewAdapter(cfg, client, log),
		mollie.NewAdapter(cfg, client, log),
		paypal.NewAdapter(cfg, client, log),
		banktransfer.NewAdapter(log),
	)
}

func provideHandlers(
	logger *logger.Logger,
	invoiceService service.InvoiceService,
	paymentService service.PaymentService,
	webhookService *webhook.Service,
) api.Handlers {
	return api.Handlers{
		Health:  v1.NewHealthHandler(),
		Invoice: v1.NewInvoiceHandler(invoiceService, logger),
		Payment: v1.NewPaymentHandler(paymentService, logger),
		Webhook: v1.NewWebhookHandler(webhookService, logger),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	return api.NewRouter(handlers, cfg, logger)
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	poller *reconcile.Poller,
	sink *notify.Sink,
	invoiceService service.InvoiceService,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	if mode == "" {
		mode = types.ModeLocal
	}

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, r, cfg, log)
		startPoller(lc, cfg, poller, invoiceService, log)
		startNotificationSink(lc, sink, log)
	case types.ModeAPI:
		startAPIServer(lc, r, cfg, log)
		startNotificationSink(lc, sink, log)
	case types.ModePoller:
		startPoller(lc, cfg, poller, invoiceService, log)
		startNotificationSink(lc, sink, log)
	default:
		log.Fatalf("Unknown deployment mode: %s", mode)
	}
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server")
			return nil
		},
	})
}

// startPoller runs the reconciliation poller and the overdue sweep for
// the lifetime of the process
func startPoller(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	poller *reconcile.Poller,
	invoiceService service.InvoiceService,
	log *logger.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := poller.Run(ctx); err != nil {
					log.Errorw("poller exited with error", "error", err)
				}
			}()
			go runOverdueSweep(ctx, cfg.Polling.Interval, invoiceService, log)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func runOverdueSweep(
	ctx context.Context,
	interval time.Duration,
	invoiceService service.InvoiceService,
	log *logger.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := invoiceService.SweepOverdue(ctx)
			if err != nil {
				log.Errorw("overdue sweep failed", "error", err)
				continue
			}
			if count > 0 {
				log.Infow("overdue sweep finished", "invoices_marked", count)
			}
		}
	}
}

func startNotificationSink(lc fx.Lifecycle, sink *notify.Sink, log *logger.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := sink.Run(ctx); err != nil {
					log.Errorw("notification sink exited with error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
