package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xenking/breeze-gateway/internal/domain/order"
)

// Webhook event types sent by Breeze.
const (
	WebhookPaymentSucceeded       = "payment.succeeded"
	WebhookPaymentSucceededLegacy = "PAYMENT_SUCCEEDED"
	WebhookPaymentFailed          = "payment.failed"
	WebhookPaymentExpired         = "PAYMENT_EXPIRED"
)

// Outcome is the result of applying a verified webhook.
type Outcome string

const (
	OutcomeCompleted       Outcome = "completed"
	OutcomeFailed          Outcome = "failed"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeStaleFailure    Outcome = "stale_failure"
	OutcomeSessionMismatch Outcome = "session_mismatch"
	OutcomeOrderNotFound   Outcome = "order_not_found"
	OutcomeIgnoredType     Outcome = "ignored_type"
)

// WebhookResult describes what a verified webhook did.
type WebhookResult struct {
	Type    string
	OrderID int64
	PageID  string
	Outcome Outcome
}

// WebhookRecord is an entry of the webhook event log.
type WebhookRecord struct {
	ID         uuid.UUID
	Type       string
	OrderID    int64
	PageID     string
	Outcome    Outcome
	ReceivedAt time.Time
}

type webhookKind int

const (
	kindUnknown webhookKind = iota
	kindSuccess
	kindFailure
)

func classify(eventType string) webhookKind {
	switch eventType {
	case WebhookPaymentSucceeded, WebhookPaymentSucceededLegacy:
		return kindSuccess
	case WebhookPaymentFailed, WebhookPaymentExpired:
		return kindFailure
	default:
		return kindUnknown
	}
}

type webhookEnvelope struct {
	Type      string
	Signature string
	// Data is the raw data object exactly as received.
	Data []byte
}

func decodeEnvelope(body []byte) (*webhookEnvelope, error) {
	if !jx.Valid(body) {
		return nil, errors.New("invalid json")
	}
	env := &webhookEnvelope{}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return nil, errors.New("envelope is not an object")
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "type":
			if d.Next() != jx.String {
				return d.Skip()
			}
			v, err := d.Str()
			env.Type = v
			return err
		case "signature":
			if d.Next() != jx.String {
				return errors.New("signature is not a string")
			}
			v, err := d.Str()
			env.Signature = v
			return err
		case "data":
			if d.Next() != jx.Object {
				return errors.New("data is not an object")
			}
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			env.Data = append([]byte(nil), raw...)
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if env.Signature == "" || len(env.Data) == 0 {
		return nil, errors.New("signature and data are required")
	}
	return env, nil
}

type webhookData struct {
	ClientReferenceID string
	PageID            string
}

func decodeData(data []byte) (webhookData, error) {
	var v webhookData
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "clientReferenceId":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			v.ClientReferenceID = s
			return err
		case "pageId":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			v.PageID = s
			return err
		default:
			return d.Skip()
		}
	})
	return v, err
}

// HandleWebhook verifies and applies a Breeze webhook. Once the signature is
// verified the delivery is acknowledged whatever the outcome. A non-nil error
// means the delivery must be rejected: ErrMalformedWebhook,
// ErrWebhookSecretMissing and ErrInvalidSignature are client errors, anything
// else is a storage failure the provider should retry.
func (s *Service) HandleWebhook(ctx context.Context, body []byte) (*WebhookResult, error) {
	ctx, span := s.tracer.Start(ctx, "payment.HandleWebhook")
	defer span.End()
	lg := zctx.From(ctx)

	env, err := decodeEnvelope(body)
	if err != nil {
		lg.Warn("Malformed webhook", zap.Error(err))
		return nil, errors.Wrap(ErrMalformedWebhook, err.Error())
	}
	if s.cfg.WebhookSecret == "" {
		lg.Error("Webhook rejected: secret is not configured")
		return nil, ErrWebhookSecretMissing
	}
	if err := VerifySignature(s.cfg.WebhookSecret, env.Data, env.Signature); err != nil {
		lg.Warn("Webhook signature verification failed", zap.String("type", env.Type))
		return nil, err
	}

	data, err := decodeData(env.Data)
	if err != nil {
		lg.Warn("Malformed webhook data", zap.Error(err))
		return nil, errors.Wrap(ErrMalformedWebhook, err.Error())
	}
	res := &WebhookResult{
		Type:    env.Type,
		OrderID: ParseClientReference(data.ClientReferenceID),
		PageID:  data.PageID,
	}
	span.SetAttributes(
		attribute.String("webhook.type", res.Type),
		attribute.Int64("order.id", res.OrderID),
	)
	ctx = zctx.With(ctx,
		zap.String("webhook_type", res.Type),
		zap.Int64("order_id", res.OrderID),
		zap.String("page_id", res.PageID),
	)
	lg = zctx.From(ctx)

	kind := classify(env.Type)
	var updated *order.Order
	switch {
	case kind == kindUnknown:
		lg.Info("Ignoring unknown webhook type")
		res.Outcome = OutcomeIgnoredType
	case res.OrderID == 0:
		lg.Warn("Webhook without a valid order reference")
		res.Outcome = OutcomeOrderNotFound
	default:
		updated, err = s.orders.Update(ctx, res.OrderID, func(o *order.Order) error {
			res.Outcome = s.applyWebhook(ctx, o, kind, data.PageID)
			switch res.Outcome {
			case OutcomeCompleted, OutcomeFailed:
				return nil
			default:
				return order.ErrNoChange
			}
		})
		if errors.Is(err, order.ErrNotFound) {
			lg.Warn("Webhook for unknown order")
			res.Outcome = OutcomeOrderNotFound
		} else if err != nil {
			lg.Error("Apply webhook", zap.Error(err))
			return nil, errors.Wrap(err, "apply webhook")
		}
	}

	count(ctx, s.metrics.webhooks,
		attribute.String("type", res.Type),
		attribute.String("outcome", string(res.Outcome)),
	)
	if err := s.events.Record(ctx, WebhookRecord{
		ID:         uuid.New(),
		Type:       res.Type,
		OrderID:    res.OrderID,
		PageID:     res.PageID,
		Outcome:    res.Outcome,
		ReceivedAt: s.now().UTC(),
	}); err != nil {
		lg.Warn("Record webhook event", zap.Error(err))
	}

	switch res.Outcome {
	case OutcomeCompleted:
		e := s.newEvent(EventCompleted, updated, updated.Payment.TransactionID)
		e.AmountMinor = MinorUnits(updated.PayableTotal())
		s.publish(ctx, e)
	case OutcomeFailed:
		s.publish(ctx, s.newEvent(EventFailed, updated, res.PageID))
	}
	lg.Info("Webhook processed", zap.String("outcome", string(res.Outcome)))
	return res, nil
}

// applyWebhook decides the transition for a verified event. It runs under
// the order lock.
func (s *Service) applyWebhook(ctx context.Context, o *order.Order, kind webhookKind, pageID string) Outcome {
	if o.Payment.RemoteSessionID != "" && pageID != "" && o.Payment.RemoteSessionID != pageID {
		zctx.From(ctx).Warn("Webhook session does not match order session, possible cross-order replay",
			zap.String("stored_page_id", o.Payment.RemoteSessionID),
		)
		return OutcomeSessionMismatch
	}

	if kind == kindSuccess {
		if o.IsPaid() {
			return OutcomeDuplicate
		}
		ref := pageID
		if ref == "" {
			ref = "N/A"
		}
		o.Status = order.StatusPaid
		o.Payment.TransactionID = pageID
		o.AddNote("Breeze payment completed. Transaction ID: "+ref, s.now())
		return OutcomeCompleted
	}

	switch o.Status {
	case order.StatusPaid:
		zctx.From(ctx).Info("Ignoring failure webhook for paid order")
		return OutcomeStaleFailure
	case order.StatusFailed:
		return OutcomeDuplicate
	}
	o.Status = order.StatusFailed
	o.AddNote("Breeze payment failed or expired.", s.now())
	return OutcomeFailed
}
