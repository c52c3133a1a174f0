package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"escrowd/core/events"
	"escrowd/core/state"
	"escrowd/crypto"
	"escrowd/native/fees"
	"escrowd/native/params"
)

// ErrCustodyShortfall is reported by VerifyCustody when the vault holds less
// than the outstanding deposits plus accumulated fees.
var ErrCustodyShortfall = errors.New("escrow: custody shortfall")

// Engine wires the escrow lifecycle with the ledger, the access gate, the
// custody hooks and the event emitter. Mutating operations run inside a single
// ledger transaction; events are emitted only after it commits.
type Engine struct {
	state           *state.Manager
	gate            *params.Gate
	guard           Guard
	receivers       ReceiverResolver
	emitter         events.Emitter
	logger          *slog.Logger
	feeBps          uint32
	feeRecipient    crypto.Address
	transferTimeout time.Duration
	nowFn           func() int64
}

// NewEngine creates an escrow engine charging feeBps on every deposit. Rates
// above fees.MaxPlatformFeeBps fail with fees.ErrFeeTooHigh.
func NewEngine(feeBps uint32) (*Engine, error) {
	if err := fees.ValidateRate(feeBps); err != nil {
		return nil, err
	}
	return &Engine{
		feeBps:          feeBps,
		emitter:         events.NoopEmitter{},
		logger:          slog.Default(),
		transferTimeout: DefaultTransferTimeout,
		nowFn:           func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState configures the ledger used by the engine.
func (e *Engine) SetState(manager *state.Manager) { e.state = manager }

// SetGate configures the access gate consulted before every mutation. Without
// a gate the engine is never paused.
func (e *Engine) SetGate(gate *params.Gate) { e.gate = gate }

// SetFeeRecipient configures the account credited with platform fees.
func (e *Engine) SetFeeRecipient(addr crypto.Address) { e.feeRecipient = addr }

// SetReceivers configures the registry of seller hooks.
func (e *Engine) SetReceivers(resolver ReceiverResolver) { e.receivers = resolver }

// SetTransferTimeout bounds each receiver hook invocation.
func (e *Engine) SetTransferTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultTransferTimeout
	}
	e.transferTimeout = timeout
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

func (e *Engine) now() int64 {
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evts ...events.Event) {
	for _, evt := range evts {
		e.emitter.Emit(evt)
	}
}

// begin runs the checks shared by every mutating entry point and opens the
// ledger transaction. The guard is checked before the writer lock so that a
// receiver hook re-entering the engine fails instead of blocking.
func (e *Engine) begin(ctx context.Context) (*state.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.guard.Check(); err != nil {
		return nil, err
	}
	return e.open()
}

func (e *Engine) open() (*state.Tx, error) {
	if e.state == nil {
		return nil, errNilState
	}
	tx := e.state.Begin()
	if e.gate != nil {
		if err := e.gate.Check(tx); err != nil {
			tx.Discard()
			return nil, err
		}
	}
	return tx, nil
}

// Create registers a new escrow between caller (the buyer), seller and
// arbiter and returns its identifier.
func (e *Engine) Create(ctx context.Context, caller, seller, arbiter crypto.Address, deadline int64) (uint64, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Discard()

	if seller.IsZero() {
		return 0, ErrInvalidSeller
	}
	if arbiter.IsZero() {
		return 0, ErrInvalidArbiter
	}
	if seller == caller {
		return 0, ErrSellerCannotBeBuyer
	}
	if arbiter == caller || arbiter == seller {
		return 0, ErrInvalidArbiter
	}
	now := e.now()
	if deadline <= now {
		return 0, ErrInvalidDeadline
	}

	id, err := nextEscrowID(tx)
	if err != nil {
		return 0, err
	}
	esc := &Escrow{
		ID:               id,
		Buyer:            caller,
		Seller:           seller,
		Arbiter:          arbiter,
		DepositedAmount:  big.NewInt(0),
		PlatformFee:      big.NewInt(0),
		CreatedAt:        now,
		DeliveryDeadline: deadline,
		Status:           StatusCreated,
	}
	if err := storeEscrow(tx, esc); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	e.emit(events.EscrowCreated{
		ID:        id,
		Buyer:     caller,
		Seller:    seller,
		Arbiter:   arbiter,
		Deadline:  deadline,
		CreatedAt: now,
	})
	return id, nil
}

// Fund deposits value into custody for escrow id. The platform fee is withheld
// immediately and credited to the fee recipient; the remainder is owed to the
// seller. Funding is accepted after the delivery deadline.
func (e *Engine) Fund(ctx context.Context, caller crypto.Address, id uint64, value *big.Int) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Discard()

	esc, err := loadEscrow(tx, id)
	if err != nil {
		return err
	}
	if esc.Buyer != caller {
		return ErrOnlyBuyerCanFund
	}
	if esc.Status != StatusCreated {
		return fmt.Errorf("%w: escrow %d is %s", ErrInvalidStatus, id, esc.Status)
	}
	if value == nil || value.Sign() <= 0 {
		return ErrAmountMustBeGreaterThanZero
	}

	split := fees.Apply(fees.ApplyInput{Gross: value, RateBps: e.feeBps, Recipient: e.feeRecipient})
	if err := tx.Debit(caller, value); err != nil {
		return err
	}
	if err := tx.VaultCredit(value); err != nil {
		return err
	}
	if err := tx.FeeCredit(e.feeRecipient, split.Fee); err != nil {
		return err
	}
	esc.DepositedAmount = split.Net
	esc.PlatformFee = split.Fee
	esc.Status = StatusFunded
	if err := storeEscrow(tx, esc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.emit(events.EscrowFunded{ID: id, Buyer: caller, Amount: cloneBigInt(split.Net), Fee: cloneBigInt(split.Fee)})
	return nil
}

// ConfirmDelivery records the seller's delivery confirmation. It must happen
// no later than the delivery deadline.
func (e *Engine) ConfirmDelivery(ctx context.Context, caller crypto.Address, id uint64) error {
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Discard()

	esc, err := loadEscrow(tx, id)
	if err != nil {
		return err
	}
	if esc.Seller != caller {
		return ErrOnlySellerCanConfirm
	}
	if esc.Status != StatusFunded {
		return fmt.Errorf("%w: escrow %d is %s", ErrInvalidStatus, id, esc.Status)
	}
	if e.now() > esc.DeliveryDeadline {
		return ErrDeadlinePassed
	}
	esc.SellerConfirmedDelivery = true
	esc.Status = StatusDelivered
	if err := storeEscrow(tx, esc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.emit(events.EscrowDelivered{ID: id, Seller: caller})
	return nil
}

// ReleasePayment completes escrow id and transfers the net deposit to the
// seller. The buyer may release from Funded or Delivered. The record is marked
// Completed before the transfer runs; a failed transfer discards the whole
// transaction and reports ErrTransferFailed.
func (e *Engine) ReleasePayment(ctx context.Context, caller crypto.Address, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	tx, err := e.open()
	if err != nil {
		return err
	}
	defer tx.Discard()

	esc, err := loadEscrow(tx, id)
	if err != nil {
		return err
	}
	if esc.Buyer != caller {
		return ErrOnlyBuyerCanRelease
	}
	if esc.Status != StatusFunded && esc.Status != StatusDelivered {
		return fmt.Errorf("%w: escrow %d is %s", ErrInvalidStatus, id, esc.Status)
	}
	esc.BuyerReleasedPayment = true
	esc.Status = StatusCompleted
	if err := storeEscrow(tx, esc); err != nil {
		return err
	}
	if err := e.transfer(ctx, tx, esc); err != nil {
		e.logger.Warn("escrow payment transfer failed",
			slog.Uint64("id", id),
			slog.String("seller", esc.Seller.String()),
			slog.Any("error", err))
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.emit(
		events.EscrowPaymentReleased{ID: id, Buyer: esc.Buyer, Seller: esc.Seller, Amount: cloneBigInt(esc.DepositedAmount)},
		events.EscrowCompleted{ID: id, SellerAmount: cloneBigInt(esc.DepositedAmount), Fee: cloneBigInt(esc.PlatformFee)},
	)
	return nil
}

// Pause toggles the access gate on behalf of caller. It is rejected while a
// release is in flight.
func (e *Engine) Pause(ctx context.Context, caller crypto.Address) error {
	if err := e.guard.Check(); err != nil {
		return err
	}
	if e.gate == nil {
		return errors.New("escrow engine: gate not configured")
	}
	return e.gate.Pause(ctx, caller)
}

// Unpause is the counterpart of Pause.
func (e *Engine) Unpause(ctx context.Context, caller crypto.Address) error {
	if err := e.guard.Check(); err != nil {
		return err
	}
	if e.gate == nil {
		return errors.New("escrow engine: gate not configured")
	}
	return e.gate.Unpause(ctx, caller)
}

// Paused reports the committed pause toggle.
func (e *Engine) Paused() (bool, error) {
	if e.gate == nil {
		return false, nil
	}
	return e.gate.Paused()
}

// Escrow returns a copy of the committed record for id.
func (e *Engine) Escrow(id uint64) (*Escrow, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return loadEscrow(e.state, id)
}

// AccumulatedFees returns the cumulative fee balance of recipient.
func (e *Engine) AccumulatedFees(recipient crypto.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.FeeBalance(recipient)
}

// Balance returns the spendable balance of addr.
func (e *Engine) Balance(addr crypto.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.Balance(addr)
}

// FeeBps returns the platform fee rate fixed at construction.
func (e *Engine) FeeBps() uint32 { return e.feeBps }

// FeeRecipient returns the account credited with platform fees.
func (e *Engine) FeeRecipient() crypto.Address { return e.feeRecipient }

// NextID returns the identifier the next Create will assign.
func (e *Engine) NextID() (uint64, error) {
	if e.state == nil {
		return 0, errNilState
	}
	return e.state.Sequence(escrowSequence)
}

// CustodyReport compares the custody vault against what it must cover.
type CustodyReport struct {
	Vault       *big.Int
	Outstanding *big.Int
	Fees        *big.Int
}

// Required returns the minimum vault balance.
func (r CustodyReport) Required() *big.Int {
	return new(big.Int).Add(r.Outstanding, r.Fees)
}

// VerifyCustody checks that the vault holds at least the net deposits of every
// escrow that has not completed plus every accumulated fee. It reads a
// consistent snapshot by holding the writer lock, so it is rejected while a
// release is in flight.
func (e *Engine) VerifyCustody(ctx context.Context) (CustodyReport, error) {
	report := CustodyReport{Vault: big.NewInt(0), Outstanding: big.NewInt(0), Fees: big.NewInt(0)}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if err := e.guard.Check(); err != nil {
		return report, err
	}
	if e.state == nil {
		return report, errNilState
	}
	tx := e.state.Begin()
	defer tx.Discard()

	vault, err := tx.VaultBalance()
	if err != nil {
		return report, err
	}
	report.Vault = vault
	next, err := tx.Sequence(escrowSequence)
	if err != nil {
		return report, err
	}
	for id := uint64(0); id < next; id++ {
		esc, err := loadEscrow(tx, id)
		if err != nil {
			return report, err
		}
		if esc.Status != StatusCompleted {
			report.Outstanding.Add(report.Outstanding, esc.DepositedAmount)
		}
	}
	recipients, err := tx.FeeRecipients()
	if err != nil {
		return report, err
	}
	for _, recipient := range recipients {
		balance, err := tx.FeeBalance(recipient)
		if err != nil {
			return report, err
		}
		report.Fees.Add(report.Fees, balance)
	}
	if report.Vault.Cmp(report.Required()) < 0 {
		return report, fmt.Errorf("%w: vault %s, required %s", ErrCustodyShortfall, report.Vault, report.Required())
	}
	return report, nil
}
