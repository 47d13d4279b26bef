package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/controllers"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/middleware"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/session"
)

// Deps carries the controller instances the routes dispatch to. The
// router never constructs services itself; wiring happens in main.
type Deps struct {
	Auth      *controllers.AuthController
	Billing   *controllers.BillingController
	Affiliate *controllers.AffiliateController
	Admin     *controllers.AdminController
	Webhook   *controllers.WebhookController
}

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter initializes the session store, applies the user context
// middleware and registers every route group.
func InstallRouter(app *fiber.App, deps Deps) {
	session.NewSessionStore()

	app.Use(middleware.UserContextMiddleware)

	setup(app, NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
