package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/controllers"
	"github.com/UniversalLevi/E-CommerceStore-sub004/app/repository"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/audit"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/cache"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/commission"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/database"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/entitlements"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/env"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/gateway"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/notification"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/plancatalog"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/router"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/subscription"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/sweep"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/trial"
)

func main() {
	app, sweeper := NewApplication()
	sweeper.Start()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		sweeper.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

// NewApplication wires the full service graph explicitly: catalog,
// gateway client, repositories, services, controllers, routes.
func NewApplication() (*fiber.App, *sweep.Sweeper) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)

	catalog, err := plancatalog.Load()
	if err != nil {
		log.Fatalf("plan catalog: %v", err)
	}

	gw := gateway.NewClientFromEnv()
	recorder := audit.NewRecorder(db)
	sink := notification.NewMailSink(db)

	subsRepo := subscription.NewRepository(db)
	subs := subscription.NewService(subsRepo, catalog, gw, recorder, sink)

	trialRepo := trial.NewRepository(db)
	workflow := trial.NewWorkflow(trialRepo, subs, gw, catalog)

	commRepo := commission.NewRepository(db)
	engine := commission.NewEngine(commRepo, catalog, recorder, sink)

	checker := entitlements.NewChecker(subs, catalog)
	sweeper := sweep.New(subs, engine, cache.GetClient(), sweep.DefaultInterval)

	userRepo := repository.GetGlobalFactory().GetUserRepository()

	app := fiber.New(fiber.Config{
		BodyLimit:   1 << 20,
		ReadTimeout: 30 * time.Second,
	})

	app.Use(recover.New(), logger.New())

	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	router.InstallRouter(app, router.Deps{
		Auth:      controllers.NewAuthController(userRepo, engine),
		Billing:   controllers.NewBillingController(workflow, subs, engine, checker, catalog),
		Affiliate: controllers.NewAffiliateController(engine),
		Admin:     controllers.NewAdminController(subs, engine, sweeper, repository.GetGlobalFactory().GetAuditLogRepository()),
		Webhook:   controllers.NewWebhookController(workflow, engine),
	})

	return app, sweeper
}
