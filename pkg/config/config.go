package config

import (
	"crypto/tls"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/xerrors"
)

// Config is read from TOKENLEDGER_* environment variables.
type Config struct {
	DBPath     string        `env:"TOKENLEDGER_DB_PATH"     envDefault:"tokenledger.db"`
	ListenAddr string        `env:"TOKENLEDGER_LISTEN_ADDR" envDefault:":8080"`
	RateLimit  float64       `env:"TOKENLEDGER_RATE_LIMIT"  envDefault:"5"`
	RateBurst  int           `env:"TOKENLEDGER_RATE_BURST"  envDefault:"10"`
	LogMode    string        `env:"TOKENLEDGER_LOG_MODE"    envDefault:"dev"`
	CORSOrigin string        `env:"TOKENLEDGER_CORS_ORIGIN" envDefault:"*"`
	OpTimeout  time.Duration `env:"TOKENLEDGER_OP_TIMEOUT"  envDefault:"5s"`

	TokenName     string `env:"TOKENLEDGER_TOKEN_NAME"     envDefault:"xDOT"`
	TokenSymbol   string `env:"TOKENLEDGER_TOKEN_SYMBOL"   envDefault:"DOT"`
	InitialSupply string `env:"TOKENLEDGER_INITIAL_SUPPLY" envDefault:"1000000000"`
	// wallet backup of the identity that creates the ledger
	CreatorKey string `env:"TOKENLEDGER_CREATOR_KEY" envDefault:"creator.wallet"`
	// wallet backup of the loan contract owner; empty means the creator
	LoanOwnerKey string `env:"TOKENLEDGER_LOAN_OWNER_KEY"`

	TLSCert string `env:"TOKENLEDGER_TLS_CERT"`
	TLSKey  string `env:"TOKENLEDGER_TLS_KEY"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, xerrors.Errorf("parse env: %w", err)
	}
	if cfg.RateLimit <= 0 {
		return Config{}, xerrors.Errorf("rate limit must be positive, got %v", cfg.RateLimit)
	}
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return Config{}, xerrors.New("TLS cert and key must be set together")
	}
	return cfg, nil
}

func (c Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// LoadTLSConfig loads the TLS configuration with certificates
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, xerrors.Errorf("load certificates: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	return tlsConfig, nil
}
