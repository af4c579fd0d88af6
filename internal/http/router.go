package http

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"sahaaya.org/app/internal/config"
	"sahaaya.org/app/internal/gateway/razorpay"
	"sahaaya.org/app/internal/http/handlers"
	"sahaaya.org/app/internal/http/middleware"
	"sahaaya.org/app/internal/modules/ledger"
	"sahaaya.org/app/internal/modules/notifications"
	"sahaaya.org/app/internal/modules/payments"
	"sahaaya.org/app/internal/modules/reconcile"
	"sahaaya.org/app/internal/storage"
)

// NewRouter wires the payment subsystem behind a gin engine. The gateway
// adapter is constructed here and passed by reference to everything that
// needs it; nothing holds a process-wide singleton.
func NewRouter(logger *slog.Logger, db *gorm.DB, cfg config.Config) (*gin.Engine, error) {
	provider := razorpay.New(razorpay.Config{
		KeyID:          cfg.GatewayKeyID,
		KeySecret:      cfg.GatewayKeySecret,
		WebhookSecret:  cfg.GatewayWebhookSecret,
		BaseURL:        cfg.GatewayBaseURL,
		CreateTimeout:  cfg.CreateTimeout,
		CaptureTimeout: cfg.CaptureTimeout,
		RefundTimeout:  cfg.RefundTimeout,
		FetchTimeout:   cfg.FetchTimeout,
	})

	store := ledger.NewStore(db)
	engine := reconcile.NewEngine()
	engine.SetLogger(logger)
	emitter := notifications.NewEmitter(db)
	emitter.SetLogger(logger)

	svc := payments.NewService(db, provider, store, engine, emitter, cfg.DefaultCurrency)
	svc.SetLogger(logger)

	webhookSvc := payments.NewWebhookService(db, store, engine, emitter)
	webhookSvc.SetLogger(logger)
	if arch, err := storage.FromEnv(context.Background()); err != nil {
		return nil, err
	} else if arch.Storage != nil {
		logger.Info("webhook archive enabled", "driver", arch.Driver)
		webhookSvc.SetArchive(arch.Storage)
	}

	paymentH := handlers.NewPaymentHandler(logger, svc)
	webhookH := handlers.NewWebhookHandler(logger, provider, webhookSvc)

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Recovery(logger),
		middleware.ErrorHandler(logger),
	)

	p := r.Group("/payments")
	{
		p.POST("/order", paymentH.CreateOrder)
		p.POST("/verify", paymentH.Verify)
		p.GET("/:id", paymentH.Get)
		p.POST("/:id/capture", paymentH.Capture)
		p.POST("/:id/refund", paymentH.Refund)
		p.POST("/:id/reconcile", paymentH.Reconcile)
	}

	r.POST("/webhooks/razorpay", webhookH.Handle)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	return r, nil
}
