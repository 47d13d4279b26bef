package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Deps
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Webhooks are authenticated by signature, not session, and must not
	// be rate limited together with browser traffic.
	app.Post("/webhooks/gateway", h.deps.Webhook.HandleGatewayWebhook)

	api := app.Group("/api", limiter.New())
	v1 := api.Group("/v1")

	// Public
	v1.Get("/plans", h.deps.Billing.HandleListPlans)
	v1.Post("/auth/register", h.deps.Auth.HandleRegister)
	v1.Post("/auth/login", h.deps.Auth.HandleLogin)
	v1.Post("/auth/logout", h.deps.Auth.HandleLogout)
	v1.Post("/payments/confirm", h.deps.Billing.HandleConfirmCheckout)

	// Session protected
	user := v1.Group("", middleware.RequireAPISessionAuth)
	user.Get("/me", h.deps.Auth.HandleMe)
	user.Post("/subscriptions/trial", h.deps.Billing.HandleBeginTrial)
	user.Post("/subscriptions/checkout", h.deps.Billing.HandleBeginCheckout)
	user.Get("/subscriptions/me", h.deps.Billing.HandleMySubscription)
	user.Post("/subscriptions/cancel", h.deps.Billing.HandleCancelSubscription)
	user.Get("/entitlements/:category", h.deps.Billing.HandleEntitlement)
	user.Post("/entitlements/:category/consume", h.deps.Billing.HandleConsumeQuota)

	user.Post("/affiliate/apply", h.deps.Affiliate.HandleApply)
	user.Get("/affiliate/summary", h.deps.Affiliate.HandleSummary)
	user.Post("/affiliate/payouts", h.deps.Affiliate.HandleRequestPayout)

	// Admin
	admin := v1.Group("/admin", middleware.RequireAPISessionAuth, middleware.RequireAdminAPI)
	admin.Post("/subscriptions/grant", h.deps.Admin.HandleGrantSubscription)
	admin.Post("/subscriptions/revoke", h.deps.Admin.HandleRevokeSubscription)
	admin.Post("/subscriptions/adjust", h.deps.Admin.HandleAdjustSubscription)
	admin.Get("/affiliates/pending", h.deps.Admin.HandleListPendingAffiliates)
	admin.Post("/affiliates/:id/review", h.deps.Admin.HandleReviewAffiliate)
	admin.Post("/commissions/:id/adjust", h.deps.Admin.HandleAdjustCommission)
	admin.Post("/payouts/:id/decide", h.deps.Admin.HandleDecidePayout)
	admin.Post("/payouts/:id/paid", h.deps.Admin.HandleMarkPayoutPaid)
	admin.Get("/audit", h.deps.Admin.HandleListAuditLog)
	admin.Post("/sweep/run", h.deps.Admin.HandleRunSweep)
}
