package trial

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/apperr"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/gateway"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/plancatalog"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/subscription"
)

// Workflow implements the "token charge now, full capture later" flow and
// the direct (non-trial) checkout. It owns payment rows; subscription
// state goes through the subscription service.
type Workflow struct {
	repo    Repository
	subs    *subscription.Service
	gw      gateway.Client
	catalog *plancatalog.Catalog
}

func NewWorkflow(repo Repository, subs *subscription.Service, gw gateway.Client, catalog *plancatalog.Catalog) *Workflow {
	return &Workflow{repo: repo, subs: subs, gw: gw, catalog: catalog}
}

// BeginTrialResult carries what the client needs to open checkout.
type BeginTrialResult struct {
	Subscription *models.Subscription   `json:"subscription"`
	MandateID    string                 `json:"mandate_id"`
	Checkout     gateway.CheckoutParams `json:"checkout"`
}

// CaptureResult reports the outcome of a capture webhook. Recovered is
// set when a replayed delivery found the payment stored but the
// activation unapplied and finished it.
type CaptureResult struct {
	Payment      *models.Payment
	Subscription *models.Subscription
	Duplicate    bool
	Recovered    bool
}

// BeginTrial registers a recurring mandate for the plan's full price and
// creates the trialing subscription plus a token-amount order bound to
// that mandate. The full-price order is NOT created here; it arrives
// later as the mandate's own capture.
func (w *Workflow) BeginTrial(ctx context.Context, userID uint, planCode string) (*BeginTrialResult, error) {
	plan, ok := w.catalog.Get(planCode)
	if !ok {
		return nil, apperr.NotFoundf("unknown plan code %q", planCode)
	}
	if plan.TrialDays <= 0 {
		return nil, apperr.Validationf("plan %s does not offer a trial", planCode)
	}

	now := time.Now()
	mandate, err := w.gw.CreateMandateSubscription(ctx, gateway.CreateMandateInput{
		PlanCode:    plan.Code,
		AmountMinor: plan.PriceMinor,
		Currency:    w.catalog.Config.SettlementCurrency,
		CustomerRef: fmt.Sprintf("user:%d", userID),
		FirstCharge: now.Add(time.Duration(plan.TrialDays) * 24 * time.Hour),
	})
	if err != nil {
		return nil, err
	}

	sub, err := w.subs.CreateTrial(ctx, userID, plan.Code, mandate.ID, now)
	if err != nil {
		// The mandate is orphaned on the gateway side; best-effort cleanup.
		cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = w.gw.CancelMandateSubscription(cancelCtx, mandate.ID)
		return nil, err
	}

	order, err := w.gw.CreateOrder(ctx, gateway.CreateOrderInput{
		AmountMinor: w.catalog.Config.TokenChargeMinor,
		Currency:    w.catalog.Config.SettlementCurrency,
		Receipt:     "trial-" + uuid.NewString(),
		MandateID:   mandate.ID,
		Notes:       map[string]string{"plan": plan.Code, "purpose": string(models.PaymentPurposeToken)},
	})
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		UserID:         userID,
		OrderID:        order.ID,
		MandateID:      mandate.ID,
		PlanCode:       plan.Code,
		Purpose:        models.PaymentPurposeToken,
		Status:         models.PaymentCreated,
		AmountMinor:    w.catalog.Config.TokenChargeMinor,
		Currency:       w.catalog.Config.SettlementCurrency,
		SubscriptionID: &sub.ID,
	}
	if err := w.repo.CreatePayment(payment); err != nil {
		return nil, err
	}

	return &BeginTrialResult{
		Subscription: sub,
		MandateID:    mandate.ID,
		Checkout: gateway.CheckoutParams{
			KeyID:       w.gw.CheckoutKeyID(),
			OrderID:     order.ID,
			MandateID:   mandate.ID,
			AmountMinor: w.catalog.Config.TokenChargeMinor,
			Currency:    w.catalog.Config.SettlementCurrency,
		},
	}, nil
}

// BeginCheckout creates a plain full-price order for plans bought without
// a trial.
func (w *Workflow) BeginCheckout(ctx context.Context, userID uint, planCode string) (*gateway.CheckoutParams, error) {
	plan, ok := w.catalog.Get(planCode)
	if !ok {
		return nil, apperr.NotFoundf("unknown plan code %q", planCode)
	}

	order, err := w.gw.CreateOrder(ctx, gateway.CreateOrderInput{
		AmountMinor: plan.PriceMinor,
		Currency:    w.catalog.Config.SettlementCurrency,
		Receipt:     "order-" + uuid.NewString(),
		Notes:       map[string]string{"plan": plan.Code, "purpose": string(models.PaymentPurposeDirect)},
	})
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		UserID:      userID,
		OrderID:     order.ID,
		PlanCode:    plan.Code,
		Purpose:     models.PaymentPurposeDirect,
		Status:      models.PaymentCreated,
		AmountMinor: plan.PriceMinor,
		Currency:    w.catalog.Config.SettlementCurrency,
	}
	if err := w.repo.CreatePayment(payment); err != nil {
		return nil, err
	}

	return &gateway.CheckoutParams{
		KeyID:       w.gw.CheckoutKeyID(),
		OrderID:     order.ID,
		AmountMinor: plan.PriceMinor,
		Currency:    w.catalog.Config.SettlementCurrency,
	}, nil
}

// ConfirmCheckout verifies the gateway's success callback for an order.
// Signature failure marks the payment failed and surfaces as a rejected
// payment; it never crashes the flow or mutates anything else.
func (w *Workflow) ConfirmCheckout(ctx context.Context, orderID, gatewayPaymentID, signature string) (*models.Payment, error) {
	payment, err := w.repo.GetPaymentByOrderID(orderID)
	if err != nil {
		return nil, apperr.NotFoundf("no payment for order %s", orderID)
	}

	if !w.gw.VerifySignature(orderID, gatewayPaymentID, signature) {
		_, _ = w.repo.MarkFailed(payment.ID)
		return nil, apperr.Signaturef("checkout signature mismatch for order %s", orderID)
	}

	ok, err := w.repo.MarkPaid(payment.ID, gatewayPaymentID, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Replayed callback; the payment already settled one way or the other.
		return w.repo.GetPaymentByOrderID(orderID)
	}

	payment, err = w.repo.GetPaymentByOrderID(orderID)
	if err != nil {
		return nil, err
	}

	// A settled direct payment activates the subscription right away.
	if payment.Purpose == models.PaymentPurposeDirect {
		sub, err := w.subs.ActivateFromDirectPayment(ctx, payment.UserID, payment.PlanCode, payment.AmountMinor, time.Now())
		if err != nil {
			return payment, err
		}
		if err := w.repo.LinkSubscription(payment.ID, sub.ID); err != nil {
			return payment, err
		}
		payment.SubscriptionID = &sub.ID
	}
	return payment, nil
}

// HandleCaptureSuccess processes the mandate's full-amount capture
// webhook. Correlation is by mandate ID: the capture carries its own
// order and payment identifiers, distinct from the token charge's.
// Replays of an already-seen gateway payment id are acknowledged as
// duplicates, but first reconciled: a payment stored as paid whose
// subscription is still trialing means the original delivery died
// between the insert and the activation, and the replay finishes it.
func (w *Workflow) HandleCaptureSuccess(ctx context.Context, mandateID, gatewayPaymentID, orderID string, amountMinor int64, capturedAt time.Time) (*CaptureResult, error) {
	if existing, err := w.repo.GetPaymentByGatewayID(gatewayPaymentID); err != nil {
		return nil, err
	} else if existing != nil {
		return w.reconcileCapture(ctx, existing, capturedAt)
	}

	sub, err := w.subs.FindByMandate(mandateID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apperr.NotFoundf("no live subscription for mandate %s", mandateID)
	}

	// The unique gateway payment id is the serialization point: of two
	// concurrent deliveries, exactly one insert wins and applies the
	// subscription transition.
	gwPaymentID := gatewayPaymentID
	payment := &models.Payment{
		UserID:           sub.UserID,
		OrderID:          orderID,
		GatewayPaymentID: &gwPaymentID,
		MandateID:        mandateID,
		PlanCode:         sub.PlanCode,
		Purpose:          models.PaymentPurposeCapture,
		Status:           models.PaymentPaid,
		AmountMinor:      amountMinor,
		Currency:         w.catalog.Config.SettlementCurrency,
		SubscriptionID:   &sub.ID,
		PaidAt:           &capturedAt,
	}
	created, err := w.repo.InsertCaptureIfNew(payment)
	if err != nil {
		return nil, err
	}
	if !created {
		existing, err := w.repo.GetPaymentByGatewayID(gatewayPaymentID)
		if err != nil {
			return nil, err
		}
		return w.reconcileCapture(ctx, existing, capturedAt)
	}

	sub, err = w.subs.ActivateFromCapture(ctx, mandateID, sub.Status, amountMinor, capturedAt)
	if err != nil {
		return nil, err
	}
	return &CaptureResult{Payment: payment, Subscription: sub}, nil
}

// reconcileCapture is the duplicate-delivery path. Normally it just
// acks, but when the stored payment is paid and its subscription never
// left trialing the activation is re-applied; the trialing-only status
// check inside the subscription service keeps this from ever stacking a
// renewal onto an already active term.
func (w *Workflow) reconcileCapture(ctx context.Context, payment *models.Payment, capturedAt time.Time) (*CaptureResult, error) {
	result := &CaptureResult{Payment: payment, Duplicate: true}
	if payment == nil || payment.Status != models.PaymentPaid || payment.Purpose != models.PaymentPurposeCapture {
		return result, nil
	}
	paidAt := capturedAt
	if payment.PaidAt != nil {
		paidAt = *payment.PaidAt
	}
	sub, recovered, err := w.subs.ReconcileTrialCapture(ctx, payment.MandateID, payment.AmountMinor, paidAt)
	if err != nil {
		return nil, err
	}
	result.Subscription = sub
	result.Recovered = recovered
	return result, nil
}

// WebhookEventInput is the normalized form of an incoming gateway
// delivery before persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// RecordWebhookEvent persists a delivery idempotently. The bool reports
// whether this call stored it first; a duplicate must be acked without
// reprocessing.
func (w *Workflow) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.GatewayWebhookEvent, error) {
	_ = ctx
	if in.ProviderEventID == "" {
		// Without a provider event id every delivery is treated as new;
		// downstream payment dedup still holds the line.
		in.ProviderEventID = uuid.NewString()
	}
	return w.repo.CreateWebhookEventIfNew(&models.GatewayWebhookEvent{
		Provider:        in.Provider,
		ProviderEventID: in.ProviderEventID,
		EventType:       in.EventType,
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	})
}

// MarkWebhookProcessed stamps the event with an optional error.
func (w *Workflow) MarkWebhookProcessed(ctx context.Context, eventID uint, processingErr error) error {
	_ = ctx
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
		if len(errMsg) > 2000 {
			errMsg = errMsg[:2000]
		}
	}
	return w.repo.MarkWebhookProcessed(eventID, errMsg)
}

// HandleCaptureFailure expires the trial whose mandate charge failed.
func (w *Workflow) HandleCaptureFailure(ctx context.Context, mandateID string) error {
	return w.subs.FailCapture(ctx, mandateID)
}

// HandleRefund flips a paid payment to refunded and returns it so the
// caller can revoke any commission accrued on it.
func (w *Workflow) HandleRefund(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	_ = ctx
	payment, err := w.repo.GetPaymentByGatewayID(gatewayPaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apperr.NotFoundf("no payment with gateway id %s", gatewayPaymentID)
	}
	ok, err := w.repo.MarkRefunded(payment.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflictf("payment %d is not in paid state", payment.ID)
	}
	payment.Status = models.PaymentRefunded
	return payment, nil
}
