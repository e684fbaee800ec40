package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"example.com/tokenledger/pkg/api"
	"example.com/tokenledger/pkg/chain"
	"example.com/tokenledger/pkg/config"
	"example.com/tokenledger/pkg/contracts/randkey"
	"example.com/tokenledger/pkg/feed"
	"example.com/tokenledger/pkg/logger"
	"example.com/tokenledger/pkg/tokens"
	"example.com/tokenledger/pkg/wallet"
)

func main() {
	app := &cli.App{
		Name:  "tokenledger",
		Usage: "fungible token ledger with delegate, loan and randomness contracts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "path of the ledger database",
				EnvVars: []string{"TOKENLEDGER_DB_PATH"},
			},
		},
		Commands: []*cli.Command{
			keygenCmd,
			serveCmd,
			verifyCmd,
			inspectCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func loadConfig(cctx *cli.Context) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if db := cctx.String("db"); db != "" {
		cfg.DBPath = db
	}
	return cfg, nil
}

var keygenCmd = &cli.Command{
	Name:  "keygen",
	Usage: "create a wallet backup and print its account id",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "out", Usage: "wallet backup file", Value: "creator.wallet"},
	},
	Action: func(cctx *cli.Context) error {
		out := cctx.String("out")
		if _, err := os.Stat(out); err == nil {
			return xerrors.Errorf("%s already exists", out)
		}
		w, err := wallet.NewWallet()
		if err != nil {
			return err
		}
		if err := w.BackupWallet(out); err != nil {
			return err
		}
		fmt.Printf("account:    %s\npublic key: %s\n", w.Address(), w.ExportPublicKey())
		return nil
	},
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "open the ledger and serve the HTTP API",
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.LogMode)
		if err != nil {
			return err
		}
		defer log.Sync()

		genesis, err := genesisFromConfig(cfg)
		if err != nil {
			return err
		}

		store, err := chain.OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		host, err := chain.Open(store, genesis, randkey.CryptoSource{}, chain.WithLogger(log.With("component", "host")))
		if err != nil {
			return err
		}

		hub := feed.NewHub(host.Events, log.With("component", "feed"))
		host.Subscribe(hub.Broadcast)

		srv := api.NewAPI(host, hub, api.Options{
			RateLimit:  cfg.RateLimit,
			RateBurst:  cfg.RateBurst,
			CORSOrigin: cfg.CORSOrigin,
			OpTimeout:  cfg.OpTimeout,
		}, log.With("component", "api"))

		tlsConfig, err := loadTLS(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Serve(ctx, cfg.ListenAddr, tlsConfig)
	},
}

var verifyCmd = &cli.Command{
	Name:  "verify",
	Usage: "validate the receipt chain and the total supply",
	Action: func(cctx *cli.Context) error {
		host, closer, err := openExisting(cctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := host.Validate(); err != nil {
			return xerrors.Errorf("ledger invalid: %w", err)
		}
		tip := host.Tip()
		fmt.Printf("ok: %d receipts, tip %x\n", tip.Height+1, tip.Hash)
		return nil
	},
}

var inspectCmd = &cli.Command{
	Name:  "inspect",
	Usage: "print token info and the latest notifications",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "last", Usage: "number of notifications to print", Value: 10},
	},
	Action: func(cctx *cli.Context) error {
		host, closer, err := openExisting(cctx)
		if err != nil {
			return err
		}
		defer closer()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(host.TokenInfo()); err != nil {
			return err
		}

		var since uint64
		if n := uint64(cctx.Int("last")); n > 0 && host.LastSeq() > n {
			since = host.LastSeq() - n + 1
		}
		events, err := host.Events(since, cctx.Int("last"))
		if err != nil {
			return err
		}
		return enc.Encode(events)
	},
}

// openExisting opens a store that must already hold a deployed ledger.
func openExisting(cctx *cli.Context) (*chain.Host, func(), error) {
	cfg, err := loadConfig(cctx)
	if err != nil {
		return nil, nil, err
	}
	store, err := chain.OpenStore(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	tip, err := store.Tip()
	if err == nil && tip == nil {
		err = xerrors.Errorf("%s holds no ledger", cfg.DBPath)
	}
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	host, err := chain.Open(store, chain.Genesis{}, randkey.CryptoSource{})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return host, func() { _ = store.Close() }, nil
}

func genesisFromConfig(cfg config.Config) (chain.Genesis, error) {
	creator, err := wallet.RestoreWallet(cfg.CreatorKey)
	if err != nil {
		return chain.Genesis{}, xerrors.Errorf("creator wallet: %w", err)
	}
	supply, err := tokens.ParseAmount(cfg.InitialSupply)
	if err != nil {
		return chain.Genesis{}, xerrors.Errorf("initial supply: %w", err)
	}
	g := chain.Genesis{
		Creator:     creator.Address(),
		Name:        []byte(cfg.TokenName),
		Symbol:      []byte(cfg.TokenSymbol),
		TotalSupply: supply,
	}
	if cfg.LoanOwnerKey != "" {
		owner, err := wallet.RestoreWallet(cfg.LoanOwnerKey)
		if err != nil {
			return chain.Genesis{}, xerrors.Errorf("loan owner wallet: %w", err)
		}
		g.LoanOwner = owner.Address()
	}
	return g, nil
}

func loadTLS(cfg config.Config) (*tls.Config, error) {
	if !cfg.TLSEnabled() {
		return nil, nil
	}
	return config.LoadTLSConfig(cfg.TLSCert, cfg.TLSKey)
}
