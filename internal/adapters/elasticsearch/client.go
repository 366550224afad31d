// Package elasticsearch implements the search engine port on top of an
// Elasticsearch cluster.
package elasticsearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
)

// Config holds cluster connection and index settings.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Shards    int
	Replicas  int
	// Tokenizer backs the "korean" analyzer of text fields. Empty uses the
	// built-in standard analyzer.
	Tokenizer string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Engine implements output.SearchEngine.
type Engine struct {
	es     *elasticsearch.Client
	cfg    Config
	logger *slog.Logger
}

// New creates an engine. No request is sent until the first call.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	if cfg.Replicas < 0 {
		cfg.Replicas = 0
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	return &Engine{es: es, cfg: cfg, logger: logger}, nil
}

// Ping implements output.SearchEngine.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.es.Ping(e.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping: %s", res.Status())
	}
	return nil
}
