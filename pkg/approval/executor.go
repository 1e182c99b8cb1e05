package approval

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sifi-swap/pkg/types"
)

// State is the approval transaction lifecycle
type State string

const (
	StateIdle       State = "idle"
	StateModalOpen  State = "modal_open"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

const DefaultConfirmationTimeout = 5 * time.Minute

var (
	ErrMissingSpender     = errors.New("approval address is missing")
	ErrMissingToken       = errors.New("from token is missing")
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrApprovalInFlight   = errors.New("an approval is already being submitted")
	ErrModalClosed        = errors.New("approval dialog is not open")
	ErrApprovalCancelled  = errors.New("approval cancelled before broadcast")
)

// MaxAllowance is the infinite approval sentinel (2^256 - 1)
var MaxAllowance = new(big.Int).Set(math.MaxBig256)

// ContractCall is a state-changing contract invocation
type ContractCall struct {
	ChainID uint64
	Address common.Address
	Method  string
	Args    []interface{}
}

// Signer is the authenticated signing channel of the connected wallet
type Signer interface {
	WriteContract(ctx context.Context, call ContractCall) (common.Hash, error)
	WaitForReceipt(ctx context.Context, chainID uint64, hash common.Hash) error
}

// Severity of a notification
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Link is an optional call-to-action attached to a notification
type Link struct {
	Href string
	Text string
}

// Notification is a user-facing message
type Notification struct {
	Severity Severity
	Message  string
	Link     *Link
}

// Notifier receives user-facing notifications
type Notifier interface {
	Notify(n Notification)
}

// ExplorerLinker formats a block explorer URL for a transaction
type ExplorerLinker interface {
	TxURL(chainID uint64, hash common.Hash) (string, bool)
}

// Request holds the facts an approval needs at the time it is requested
type Request struct {
	ChainID   uint64
	FromToken *types.Token
	Quote     *types.Quote
}

// Options configures an Executor
type Options struct {
	Signer              Signer
	Notifier            Notifier
	Explorer            ExplorerLinker
	Logger              logrus.FieldLogger
	ConfirmationTimeout time.Duration

	// OnConfirmed runs after a successful confirmation, before the state returns to idle
	OnConfirmed func(hash common.Hash)
	// OnStateChange observes every transition. It runs with the executor
	// locked and must not call back into it.
	OnStateChange func(from, to State)
}

// Executor drives the approval of the from-token for the quote's spender.
// Only one approval can be submitting at a time.
type Executor struct {
	opts Options

	mu           sync.Mutex
	state        State
	modalOpen    bool
	inFlight     bool
	cancelIntent context.CancelFunc
}

// NewExecutor creates an idle executor
func NewExecutor(opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	return &Executor{
		opts:  opts,
		state: StateIdle,
	}
}

// SetSigner swaps the signing channel, nil meaning the wallet disconnected
func (e *Executor) SetSigner(signer Signer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts.Signer = signer
}

// State returns the current state
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ModalOpen reports whether the approval dialog should be visible
func (e *Executor) ModalOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modalOpen
}

// InProgress returns true while an approval transaction is being submitted or confirmed
func (e *Executor) InProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateSubmitting
}

// OpenModal shows the approval dialog. A finished attempt is acknowledged implicitly.
func (e *Executor) OpenModal() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inFlight {
		return ErrApprovalInFlight
	}

	e.modalOpen = true
	e.setState(StateModalOpen)
	return nil
}

// CloseModal hides the dialog. Before broadcast this cancels the approval; an
// already broadcast transaction keeps being confirmed.
func (e *Executor) CloseModal() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.modalOpen = false

	if e.cancelIntent != nil {
		e.cancelIntent()
		e.cancelIntent = nil
	}
	if e.state != StateSubmitting {
		e.setState(StateIdle)
	}
}

// Acknowledge resets a finished attempt to idle
func (e *Executor) Acknowledge() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateSuccess || e.state == StateFailed {
		e.setState(StateIdle)
	}
}

// RequestApproval submits an infinite approval for the quote's spender and
// waits for it to be mined. It makes exactly one attempt.
func (e *Executor) RequestApproval(ctx context.Context, req Request) (common.Hash, error) {
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return common.Hash{}, ErrApprovalInFlight
	}
	spender := req.Quote.Spender()
	if spender == "" {
		e.mu.Unlock()
		return common.Hash{}, ErrMissingSpender
	}
	if req.FromToken == nil {
		e.mu.Unlock()
		return common.Hash{}, ErrMissingToken
	}
	signer := e.opts.Signer
	if signer == nil {
		e.mu.Unlock()
		return common.Hash{}, ErrWalletNotConnected
	}
	if e.state != StateModalOpen {
		e.mu.Unlock()
		return common.Hash{}, ErrModalClosed
	}

	intentCtx, cancel := context.WithCancel(ctx)
	e.inFlight = true
	e.cancelIntent = cancel
	e.setState(StateSubmitting)
	e.mu.Unlock()

	defer cancel()

	l := e.opts.Logger.WithFields(logrus.Fields{
		"attempt": uuid.New().String(),
		"chainID": req.ChainID,
		"token":   req.FromToken.Symbol,
		"spender": spender,
	})

	hash, err := signer.WriteContract(intentCtx, ContractCall{
		ChainID: req.ChainID,
		Address: common.HexToAddress(req.FromToken.Address),
		Method:  "approve",
		Args:    []interface{}{common.HexToAddress(spender), new(big.Int).Set(MaxAllowance)},
	})
	if err != nil {
		if intentCtx.Err() != nil && ctx.Err() == nil {
			l.Info("approve cancelled before broadcast")
			e.cancelled()
			return common.Hash{}, ErrApprovalCancelled
		}
		l.WithError(err).Warn("approve not broadcast")
		return common.Hash{}, e.fail(fmt.Errorf("failed to send approve: %w", err))
	}

	// Broadcast: the dialog closes and closing it no longer cancels anything
	e.mu.Lock()
	e.cancelIntent = nil
	e.modalOpen = false
	e.mu.Unlock()

	l = l.WithField("txHash", hash.Hex())
	l.Info("approve broadcast, waiting for confirmation")

	waitCtx, waitCancel := context.WithTimeout(ctx, e.opts.ConfirmationTimeout)
	defer waitCancel()

	if err := signer.WaitForReceipt(waitCtx, req.ChainID, hash); err != nil {
		l.WithError(err).Warn("approve not confirmed")
		return hash, e.fail(fmt.Errorf("failed to confirm approve %s: %w", hash.Hex(), err))
	}

	l.Info("approve confirmed")
	e.notify(Notification{
		Severity: SeveritySuccess,
		Message:  fmt.Sprintf("Approved %s for trading", req.FromToken.Symbol),
		Link:     e.txLink(req.ChainID, hash),
	})

	e.mu.Lock()
	e.inFlight = false
	e.setState(StateSuccess)
	e.mu.Unlock()

	if e.opts.OnConfirmed != nil {
		e.opts.OnConfirmed(hash)
	}

	e.mu.Lock()
	if e.state == StateSuccess {
		e.setState(StateIdle)
	}
	e.mu.Unlock()

	return hash, nil
}

func (e *Executor) cancelled() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inFlight = false
	e.cancelIntent = nil
	e.modalOpen = false
	e.setState(StateIdle)
}

func (e *Executor) fail(err error) error {
	e.mu.Lock()
	e.inFlight = false
	e.cancelIntent = nil
	e.modalOpen = false
	e.setState(StateFailed)
	e.mu.Unlock()

	e.notify(Notification{Severity: SeverityError, Message: err.Error()})
	return err
}

func (e *Executor) txLink(chainID uint64, hash common.Hash) *Link {
	if e.opts.Explorer == nil {
		return &Link{Text: "View Transaction"}
	}
	href, _ := e.opts.Explorer.TxURL(chainID, hash)
	return &Link{Href: href, Text: "View Transaction"}
}

func (e *Executor) notify(n Notification) {
	if e.opts.Notifier != nil {
		e.opts.Notifier.Notify(n)
	}
}

// setState must be called with the lock held
func (e *Executor) setState(to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	if e.opts.OnStateChange != nil {
		e.opts.OnStateChange(from, to)
	}
}
