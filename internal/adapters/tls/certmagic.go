// Package tls obtains and renews certificates through ACME with Azure DNS
// challenges.
package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"

	"github.com/caddyserver/certmagic"
	"github.com/libdns/azure"
)

// Config holds TLS configuration.
type Config struct {
	Enabled  bool
	Domains  []string
	Email    string
	CacheDir string
	Staging  bool // Use the Let's Encrypt staging CA
	DNS      DNSConfig
}

// DNSConfig holds Azure DNS provider configuration for DNS-01 challenges.
type DNSConfig struct {
	SubscriptionID    string
	ResourceGroupName string
	ClientID          string // User assigned managed identity (optional)
}

// Validate checks that an enabled configuration can obtain certificates.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if len(c.Domains) == 0 {
		errs = append(errs, errors.New("tls enabled but no domains specified"))
	}
	if c.Email == "" {
		errs = append(errs, errors.New("tls enabled but no email specified"))
	}
	if c.DNS.SubscriptionID == "" || c.DNS.ResourceGroupName == "" {
		errs = append(errs, errors.New("tls enabled but azure dns subscription or resource group missing"))
	}
	return errors.Join(errs...)
}

// Manager owns the certmagic configuration of one server.
type Manager struct {
	cfg    Config
	magic  *certmagic.Config
	logger *slog.Logger
}

// NewManager configures ACME issuance for cfg.
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return &Manager{cfg: cfg, logger: logger}, nil
	}

	magic := certmagic.NewDefault()
	if cfg.CacheDir != "" {
		magic.Storage = &certmagic.FileStorage{Path: cfg.CacheDir}
	}

	ca := certmagic.LetsEncryptProductionCA
	if cfg.Staging {
		ca = certmagic.LetsEncryptStagingCA
	}

	provider := &azure.Provider{
		SubscriptionId:    cfg.DNS.SubscriptionID,
		ResourceGroupName: cfg.DNS.ResourceGroupName,
		ClientId:          cfg.DNS.ClientID,
	}
	issuer := certmagic.NewACMEIssuer(magic, certmagic.ACMEIssuer{
		CA:     ca,
		Email:  cfg.Email,
		Agreed: true,
		DNS01Solver: &certmagic.DNS01Solver{
			DNSManager: certmagic.DNSManager{DNSProvider: provider},
		},
	})
	magic.Issuers = []certmagic.Issuer{issuer}

	return &Manager{cfg: cfg, magic: magic, logger: logger}, nil
}

// Enabled reports whether certificates are managed.
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

// ManageCertificates obtains certificates for the configured domains and
// keeps them renewed in the background.
func (m *Manager) ManageCertificates(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}

	m.logger.Info("obtaining certificates", "domains", m.cfg.Domains)
	if err := m.magic.ManageSync(ctx, m.cfg.Domains); err != nil {
		return fmt.Errorf("managing certificates: %w", err)
	}
	m.logger.Info("certificates obtained", "domains", m.cfg.Domains)
	return nil
}

// TLSConfig returns the server TLS configuration, or nil when disabled.
func (m *Manager) TLSConfig() *tls.Config {
	if !m.cfg.Enabled {
		return nil
	}
	tc := m.magic.TLSConfig()
	tc.NextProtos = append([]string{"h2", "http/1.1"}, tc.NextProtos...)
	return tc
}
