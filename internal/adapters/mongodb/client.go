// Package mongodb implements the document store ports on MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Collections names the source collections read by the reindex fetchers.
type Collections struct {
	Hospitals     string
	Pharmacies    string
	MapFeatures   string
	SigunguCoords string
	Boundaries    string
}

// Config contains MongoDB connection settings.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	BatchSize      int
	Collections    Collections
}

// Client wraps a connected MongoDB client and the service database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    Config
	logger *slog.Logger
}

// Connect opens a client and verifies the primary is reachable.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	logger.Info("connected to mongodb", "database", cfg.Database)

	return &Client{
		client: client,
		db:     client.Database(cfg.Database),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Boundaries returns the BoundaryStore backed by this client.
func (c *Client) Boundaries() *BoundaryStore {
	return &BoundaryStore{db: c.db, logger: c.logger}
}

// Source returns the EntitySource backed by this client.
func (c *Client) Source() *EntitySource {
	return &EntitySource{db: c.db, collections: c.cfg.Collections, batchSize: c.cfg.BatchSize}
}
