package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"escrowd/config"
	"escrowd/core/events"
	"escrowd/core/genesis"
	"escrowd/core/state"
	"escrowd/integrations/journal"
	"escrowd/integrations/webhooks"
	"escrowd/native/escrow"
	"escrowd/native/params"
	"escrowd/observability"
	"escrowd/services/notifier"
	"escrowd/storage"
)

// node owns every long-lived component of a running escrowd process.
type node struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       storage.Database
	state    *state.Manager
	gate     *params.Gate
	engine   *escrow.Engine
	stream   *events.Broadcaster
	notifier *notifier.Notifier
	journal  *journal.Journal
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Database)) {
	case "memory":
		return storage.NewMemDB(), nil
	case "leveldb", "":
		return storage.NewLevelDB(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unsupported database %q", cfg.Database)
	}
}

func loadGenesis(cfg *config.Config) (*genesis.Spec, error) {
	var spec *genesis.Spec
	if path := strings.TrimSpace(cfg.GenesisFile); path != "" {
		loaded, err := genesis.LoadSpec(path)
		if err != nil {
			return nil, err
		}
		spec = loaded
	}
	return spec.Merge(cfg.Genesis), nil
}

func newNode(cfg *config.Config, logger *slog.Logger) (_ *node, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	owner, err := cfg.OwnerAddress()
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	feeRecipient, err := cfg.FeeRecipientAddress()
	if err != nil {
		return nil, fmt.Errorf("fee recipient: %w", err)
	}

	n := &node{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = n.Close()
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	n.db = db
	n.state = state.NewManager(n.db)

	spec, err := loadGenesis(cfg)
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	applied, err := genesis.Apply(n.state, spec)
	if err != nil {
		return nil, fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis allocations applied", "accounts", len(spec.Alloc))
	}

	var sinks []notifier.Sink
	if driver := strings.TrimSpace(cfg.Journal.Driver); driver != "" {
		j, err := journal.Open(driver, cfg.Journal.DSN)
		if err != nil {
			return nil, err
		}
		n.journal = j
		sinks = append(sinks, n.journal)
	}
	if url := strings.TrimSpace(cfg.Webhooks.URL); url != "" {
		dispatcher, err := webhooks.NewDispatcher(url, []byte(cfg.Webhooks.Secret),
			webhooks.WithTimeout(cfg.Webhooks.Timeout),
			webhooks.WithRetryPolicy(cfg.Webhooks.MaxAttempts, cfg.Webhooks.Backoff, cfg.Webhooks.MaxBackoff))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dispatcher)
	}
	n.notifier = notifier.New(sinks,
		notifier.WithCapacity(cfg.Notifier.QueueCapacity),
		notifier.WithHistorySize(cfg.Notifier.HistorySize),
		notifier.WithTTL(cfg.Notifier.QueueTTL),
		notifier.WithLogger(logger.With("component", "notifier")))
	n.stream = events.NewBroadcaster()
	emitter := events.MultiEmitter{observability.Events(), n.stream, n.notifier}

	n.gate = params.NewGate(n.state, owner)
	n.gate.SetEmitter(emitter)
	n.gate.SetLogger(logger.With("component", "gate"))

	n.engine, err = escrow.NewEngine(cfg.Escrow.FeeBps)
	if err != nil {
		return nil, err
	}
	n.engine.SetState(n.state)
	n.engine.SetGate(n.gate)
	n.engine.SetFeeRecipient(feeRecipient)
	n.engine.SetReceivers(escrow.NewReceivers())
	n.engine.SetTransferTimeout(cfg.Escrow.TransferTimeout)
	n.engine.SetEmitter(emitter)
	n.engine.SetLogger(logger.With("component", "escrow"))

	paused, err := n.gate.Paused()
	if err != nil {
		return nil, err
	}
	observability.Custody().SetPause(paused)
	return n, nil
}

// Close releases the journal and the ledger database.
func (n *node) Close() error {
	var errs []error
	if n.journal != nil {
		errs = append(errs, n.journal.Close())
	}
	if n.db != nil {
		errs = append(errs, n.db.Close())
	}
	return errors.Join(errs...)
}
