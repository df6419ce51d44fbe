package payment

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/xenking/breeze-gateway/internal/breeze"
	"github.com/xenking/breeze-gateway/internal/domain/customer"
	"github.com/xenking/breeze-gateway/internal/domain/order"
)

// Session is a created checkout session.
type Session struct {
	ID         string
	URL        string
	CustomerID string
}

// ClientReference returns the provider client reference of an order.
func ClientReference(orderID int64) string {
	return "order-" + strconv.FormatInt(orderID, 10)
}

// ParseClientReference extracts the order id from a client reference. It
// returns 0 when ref does not name a positive order id.
func ParseClientReference(ref string) int64 {
	id, err := strconv.ParseInt(strings.TrimPrefix(ref, "order-"), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// CreateCheckoutSession creates a hosted checkout session for the order and
// returns the URL the buyer must be redirected to.
func (s *Service) CreateCheckoutSession(ctx context.Context, orderID int64) (_ *Session, rerr error) {
	ctx, span := s.tracer.Start(ctx, "payment.CreateCheckoutSession")
	defer func() {
		result := "ok"
		if rerr != nil {
			result = "error"
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		count(ctx, s.metrics.sessions, attribute.String("result", result))
		span.End()
	}()
	span.SetAttributes(attribute.Int64("order.id", orderID))

	ctx = zctx.With(ctx, zap.Int64("order_id", orderID))
	lg := zctx.From(ctx)

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if o.IsPaid() {
		return nil, ErrAlreadyPaid
	}
	if !s.Available(o.Currency) {
		return nil, errors.Wrap(ErrUnsupportedCurrency, o.Currency)
	}

	customerID, err := s.resolveCustomer(ctx, o)
	if err != nil {
		lg.Error("Resolve Breeze customer", zap.Error(err))
		return nil, &CustomerResolutionError{OrderID: o.ID, Err: err}
	}

	products, err := BuildLineItems(o)
	if err != nil {
		return nil, err
	}

	token, err := s.token()
	if err != nil {
		return nil, errors.Wrap(err, "generate return token")
	}
	// The token must be stored before the buyer can possibly come back.
	if _, err := s.orders.Update(ctx, o.ID, func(o *order.Order) error {
		o.Payment.ReturnToken = token
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "store return token")
	}

	page, err := s.provider.CreatePaymentPage(ctx, breeze.PaymentPageRequest{
		Products:          products,
		BillingEmail:      o.BillingEmail,
		ClientReferenceID: ClientReference(o.ID),
		SuccessReturnURL:  s.returnURL(o.ID, ReturnSuccess, token),
		FailReturnURL:     s.returnURL(o.ID, ReturnFailed, token),
		Customer:          breeze.CustomerRef{ID: customerID},
	})
	if err != nil {
		lg.Error("Create Breeze payment page", zap.Error(err))
		return nil, &SessionCreationError{OrderID: o.ID, Err: err}
	}
	if page.URL == "" {
		lg.Error("Breeze payment page has no url", zap.String("page_id", page.ID))
		return nil, &SessionCreationError{OrderID: o.ID}
	}

	updated, err := s.orders.Update(ctx, o.ID, func(o *order.Order) error {
		if o.IsPaid() {
			return ErrAlreadyPaid
		}
		o.Payment.RemoteCustomerID = customerID
		o.Payment.RemoteSessionID = page.ID
		o.Status = order.StatusPendingRemote
		o.AddNote("Awaiting Breeze payment.", s.now())
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "store session")
	}

	e := s.newEvent(EventSessionCreated, updated, page.ID)
	e.AmountMinor = MinorUnits(updated.PayableTotal())
	s.publish(ctx, e)

	lg.Info("Checkout session created", zap.String("page_id", page.ID))
	return &Session{
		ID:         page.ID,
		URL:        s.withPaymentMethods(page.URL),
		CustomerID: customerID,
	}, nil
}

// resolveCustomer returns the remote customer id for the order buyer. Known
// users are cached, guests are looked up by email every time.
func (s *Service) resolveCustomer(ctx context.Context, o *order.Order) (string, error) {
	lg := zctx.From(ctx)

	if !o.IsGuest() {
		id, err := s.customers.RemoteID(ctx, o.UserID)
		switch {
		case err == nil && id != "":
			return id, nil
		case err != nil && !errors.Is(err, customer.ErrNotFound):
			lg.Warn("Read cached customer id", zap.Error(err))
		}
	}

	if o.BillingEmail != "" {
		found, err := s.provider.FindCustomerByEmail(ctx, o.BillingEmail)
		if err != nil {
			// Lookup is best effort, creation decides.
			lg.Warn("Find Breeze customer", zap.Error(err))
		}
		if found != nil {
			s.rememberCustomer(ctx, o, found.ID)
			return found.ID, nil
		}
	}

	created, err := s.provider.CreateCustomer(ctx, breeze.CreateCustomerRequest{
		ReferenceID: customer.ReferenceID(o.UserID, o.ID),
		Email:       o.BillingEmail,
		SignupAt:    s.now().UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	s.rememberCustomer(ctx, o, created.ID)
	return created.ID, nil
}

func (s *Service) rememberCustomer(ctx context.Context, o *order.Order, remoteID string) {
	if o.IsGuest() {
		return
	}
	if err := s.customers.SetRemoteID(ctx, o.UserID, remoteID); err != nil {
		zctx.From(ctx).Warn("Cache customer id", zap.Error(err))
	}
}

func (s *Service) returnURL(orderID int64, status, token string) string {
	q := url.Values{}
	q.Set("orderId", strconv.FormatInt(orderID, 10))
	q.Set("status", status)
	q.Set("token", token)
	return appendQuery(s.cfg.ReturnURL, q.Encode())
}

func (s *Service) withPaymentMethods(pageURL string) string {
	if len(s.cfg.PaymentMethods) == 0 {
		return pageURL
	}
	methods := make([]string, len(s.cfg.PaymentMethods))
	for i, m := range s.cfg.PaymentMethods {
		methods[i] = url.QueryEscape(m)
	}
	return appendQuery(pageURL, "preferred_payment_methods="+strings.Join(methods, ","))
}

func appendQuery(u, query string) string {
	if strings.Contains(u, "?") {
		return u + "&" + query
	}
	return u + "?" + query
}
