package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/apperr"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/commission"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/env"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/gateway"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/trial"
)

// WebhookController ingests payment gateway deliveries. Every delivery
// is persisted before any processing; duplicates are acked without side
// effects and bad signatures are rejected after persistence.
type WebhookController struct {
	workflow *trial.Workflow
	engine   *commission.Engine
}

func NewWebhookController(workflow *trial.Workflow, engine *commission.Engine) *WebhookController {
	return &WebhookController{workflow: workflow, engine: engine}
}

// gatewayEvent is the subset of the gateway's webhook body we act on.
type gatewayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		MandateID        string `json:"mandate_id"`
		OrderID          string `json:"order_id"`
		GatewayPaymentID string `json:"payment_id"`
		AmountMinor      int64  `json:"amount_minor"`
		CapturedAt       string `json:"captured_at"`
	} `json:"payload"`
}

const (
	eventCaptureSuccess = "mandate.capture_success"
	eventCaptureFailed  = "mandate.capture_failed"
	eventRefund         = "payment.refunded"
	eventMandateCancel  = "mandate.cancelled"
)

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}

// HandleGatewayWebhook processes one delivery end to end.
func (wc *WebhookController) HandleGatewayWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	eventType := strings.TrimSpace(c.Get("X-Gateway-Event"))
	eventID := firstHeaderValue(c, "X-Gateway-Event-ID", "X-Gateway-Delivery")
	signature := strings.TrimSpace(c.Get("X-Gateway-Signature"))
	secret := env.GetEnv("GATEWAY_WEBHOOK_SECRET", "")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	signatureValid := gateway.VerifyWebhookSignature(rawBody, signature, secret)
	created, stored, err := wc.workflow.RecordWebhookEvent(ctx, trial.WebhookEventInput{
		Provider:        gateway.Provider,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		// Only a delivery that already processed cleanly is acked blind;
		// a redelivery of one that failed mid-flight runs again so the
		// stored state gets reconciled.
		if stored.ProcessedAt != nil && stored.ProcessingError == "" {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
		}
	}
	if !signatureValid {
		_ = wc.workflow.MarkWebhookProcessed(ctx, stored.ID, errors.New("invalid webhook signature"))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	var event gatewayEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		_ = wc.workflow.MarkWebhookProcessed(ctx, stored.ID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if event.Event == "" {
		event.Event = eventType
	}

	processErr := wc.dispatch(ctx, event)
	_ = wc.workflow.MarkWebhookProcessed(ctx, stored.ID, processErr)
	if processErr != nil {
		if errors.Is(processErr, apperr.ErrNotFound) {
			// No local state to apply the event to; ack so the gateway
			// stops redelivering.
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		log.Errorf("[Webhook] %s processing failed: %v", event.Event, processErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func (wc *WebhookController) dispatch(ctx context.Context, event gatewayEvent) error {
	switch event.Event {
	case eventCaptureSuccess:
		capturedAt := time.Now()
		if event.Payload.CapturedAt != "" {
			if t, err := time.Parse(time.RFC3339, event.Payload.CapturedAt); err == nil {
				capturedAt = t
			}
		}
		result, err := wc.workflow.HandleCaptureSuccess(ctx,
			event.Payload.MandateID,
			event.Payload.GatewayPaymentID,
			event.Payload.OrderID,
			event.Payload.AmountMinor,
			capturedAt,
		)
		if err != nil {
			return err
		}
		if result.Duplicate && !result.Recovered {
			return nil
		}
		if _, cerr := wc.engine.ComputeCommission(ctx, result.Payment); cerr != nil {
			log.Errorf("[Webhook] commission accrual for payment %d failed: %v", result.Payment.ID, cerr)
		}
		return nil

	case eventCaptureFailed:
		return wc.workflow.HandleCaptureFailure(ctx, event.Payload.MandateID)

	case eventRefund:
		payment, err := wc.workflow.HandleRefund(ctx, event.Payload.GatewayPaymentID)
		if err != nil {
			return err
		}
		return wc.engine.RevokeForPayment(ctx, "system:webhook", payment.ID, "payment refunded")

	case eventMandateCancel:
		// Gateway-side cancellation is informational; the local record
		// stays authoritative and only changes through API calls.
		return nil

	default:
		// Unknown event types are stored and acked, never failed.
		return nil
	}
}
