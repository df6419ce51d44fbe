// Command mockwebhook signs Breeze webhook events and posts them to a running
// gateway. Deliveries can be repeated concurrently to exercise idempotency.
package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/breeze-gateway/internal/domain/payment"
)

type options struct {
	url         string
	secret      string
	eventType   string
	orderID     int64
	pageID      string
	count       int
	concurrency int
}

func main() {
	var opts options
	flag.StringVar(&opts.url, "url", "http://localhost:8080/breeze/webhook", "webhook endpoint")
	flag.StringVar(&opts.secret, "secret", "", "webhook secret (or BREEZE_WEBHOOK_SECRET env)")
	flag.StringVar(&opts.eventType, "type", payment.WebhookPaymentSucceeded, "event type")
	flag.Int64Var(&opts.orderID, "order-id", 1001, "order id")
	flag.StringVar(&opts.pageID, "page-id", "", "payment page id")
	flag.IntVar(&opts.count, "count", 1, "number of deliveries")
	flag.IntVar(&opts.concurrency, "concurrency", 4, "parallel deliveries")
	flag.Parse()

	if opts.secret == "" {
		opts.secret = os.Getenv("BREEZE_WEBHOOK_SECRET")
	}
	if opts.secret == "" {
		slog.Error("webhook secret is required: set --secret or BREEZE_WEBHOOK_SECRET")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, &http.Client{Timeout: 10 * time.Second}, opts); err != nil {
		slog.Error("delivery failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, client *http.Client, opts options) error {
	body, err := buildEvent(opts.secret, opts.eventType, opts.orderID, opts.pageID)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.concurrency, 1))
	for i := range max(opts.count, 1) {
		g.Go(func() error {
			status, msg, err := deliver(ctx, client, opts.url, body)
			if err != nil {
				return errors.Wrapf(err, "delivery %d", i+1)
			}
			slog.Info("delivered",
				slog.Int("n", i+1),
				slog.Int("status", status),
				slog.String("response", msg),
			)
			if status != http.StatusOK {
				return errors.Errorf("delivery %d: unexpected status %d", i+1, status)
			}
			return nil
		})
	}
	return g.Wait()
}

// buildEvent returns a signed webhook envelope.
func buildEvent(secret, eventType string, orderID int64, pageID string) ([]byte, error) {
	var data jx.Encoder
	data.ObjStart()
	data.FieldStart("clientReferenceId")
	data.Str(payment.ClientReference(orderID))
	if pageID != "" {
		data.FieldStart("pageId")
		data.Str(pageID)
	}
	data.FieldStart("status")
	data.Str(eventType)
	data.ObjEnd()

	sig, err := payment.Sign(secret, data.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "sign event")
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("type")
	e.Str(eventType)
	e.FieldStart("signature")
	e.Str(sig)
	e.FieldStart("data")
	e.Raw(data.Bytes())
	e.ObjEnd()
	return e.Bytes(), nil
}

func deliver(ctx context.Context, client *http.Client, url string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", errors.Wrap(err, "post")
	}
	defer func() { _ = resp.Body.Close() }()

	msg, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		return resp.StatusCode, "", errors.Wrap(err, "read response")
	}
	return resp.StatusCode, string(msg), nil
}
