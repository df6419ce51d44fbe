package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/breeze-gateway/internal/domain/auth"
	"github.com/xenking/breeze-gateway/internal/domain/order"
	"github.com/xenking/breeze-gateway/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		orderID      int64
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Int64Var(&orderID, "order-id", 1001, "id of the demo order")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or BREEZE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or BREEZE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("BREEZE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or BREEZE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("BREEZE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, orderID, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string, orderID int64, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedOrder(ctx, postgres.NewOrderRepository(pool), orderID); err != nil {
		return errors.Wrap(err, "seed order")
	}

	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedOrder(ctx context.Context, orders *postgres.OrderRepository, id int64) error {
	now := time.Now().UTC()
	o := &order.Order{
		ID:           id,
		Status:       order.StatusUnpaid,
		Currency:     "USD",
		BillingEmail: "buyer@example.com",
		Items: []order.Item{
			{
				Name:         "Waffle with Berries",
				Description:  "Belgian waffle topped with fresh berries",
				LineTotal:    decimal.RequireFromString("13.00"),
				Quantity:     2,
				CatalogPrice: decimal.RequireFromString("6.50"),
				ProductID:    "1",
			},
			{
				Name:         "Vanilla Bean Crème Brûlée",
				LineTotal:    decimal.RequireFromString("7.00"),
				Quantity:     1,
				CatalogPrice: decimal.RequireFromString("7.00"),
				ProductID:    "2",
			},
		},
		ShippingTotal:  decimal.RequireFromString("4.99"),
		ShippingMethod: "Flat rate",
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := orders.Create(ctx, o); err != nil {
		return errors.Wrapf(err, "create order %d", id)
	}

	slog.Info("created demo order",
		slog.Int64("id", id),
		slog.String("total", o.PayableTotal().StringFixed(2)),
	)

	return nil
}

func seedAPIKey(ctx context.Context, keys *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	if err := keys.Save(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Default merchant key",
		Scopes:  []string{auth.ScopeCheckout, auth.ScopeRefund, auth.ScopeRead},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default merchant key"))

	return nil
}
