package lease

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"leasenet/core/events"
	"leasenet/core/types"
	"leasenet/native/fees"
)

var (
	// ErrListingExists is returned by Lend when the asset already has a listing.
	ErrListingExists = errors.New("lease: listing already exists")
	// ErrListingNotFound is returned when no listing exists for the asset.
	ErrListingNotFound = errors.New("lease: listing not found")
	// ErrNotOwner rejects calls restricted to the listing owner.
	ErrNotOwner = errors.New("lease: caller is not the listing owner")
	// ErrNotAdmin rejects calls restricted to the module administrator.
	ErrNotAdmin = errors.New("lease: caller is not the administrator")
	// ErrLeaseActive rejects transitions that require the current lease segment
	// to have ended.
	ErrLeaseActive = errors.New("lease: asset is being leased")
	// ErrTermsOutOfBounds rejects lease durations or deadlines outside the
	// owner-declared terms.
	ErrTermsOutOfBounds = errors.New("lease: terms out of bounds")
	// ErrWrongPayment rejects payments that do not match the listing price.
	ErrWrongPayment = errors.New("lease: payment does not match price")
	// ErrNotWhitelisted rejects borrows against collections with no wrapped
	// usage-rights counterpart.
	ErrNotWhitelisted = errors.New("lease: collection not whitelisted")
	// ErrAlreadyWhitelisted rejects overwriting an existing whitelist entry.
	ErrAlreadyWhitelisted = errors.New("lease: collection already whitelisted")
	// ErrNothingToClaim is returned when no finalized reward is payable.
	ErrNothingToClaim = errors.New("lease: no rewards to pay out")
	// ErrRefundTooEarly gates administrative refunds on the refund delay.
	ErrRefundTooEarly = errors.New("lease: refund window not yet open")

	errNilState  = errors.New("lease engine: state not configured")
	errNilVault  = errors.New("lease engine: asset vault not configured")
	errNilMinter = errors.New("lease engine: lease minter not configured")
)

// RefundDelay is the minimum age of the current lease segment before the
// administrator may trigger a refund.
const RefundDelay = 24 * 60 * 60

type engineState interface {
	ListingPut(*Listing) error
	ListingGet(key [32]byte) (*Listing, bool)
	ListingDelete(key [32]byte) error
	WrappedGet(collection [20]byte) ([20]byte, bool)
	WrappedPut(original, wrapped [20]byte) error
	OriginalPut(network string, remote [20]byte) error
	OriginalGet(network string) ([20]byte, bool)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// AssetVault is the escrow collaborator holding original assets. Custody
// requires prior transfer authorization by the owner.
type AssetVault interface {
	Custody(collection [20]byte, assetID uint64, from [20]byte) error
	Release(collection [20]byte, assetID uint64, to [20]byte) error
}

// LeaseMinter is the wrapped usage-rights collaborator. Adopt verifies (or
// takes) administrative control of a wrapped collection so the engine may mint
// and burn on it.
type LeaseMinter interface {
	Adopt(wrapped [20]byte) error
	MintLease(wrapped [20]byte, assetID uint64, to [20]byte, expires int64) error
	BurnLease(wrapped [20]byte, assetID uint64) error
}

type leaseEvent struct {
	evt *types.Event
}

func (e leaseEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e leaseEvent) Event() *types.Event { return e.evt }

// Engine implements the lease lifecycle and reward settlement state machine.
// All transitions are serialized by the caller; the engine itself performs no
// locking and commits each transition atomically through the state backend.
type Engine struct {
	state        engineState
	vault        AssetVault
	minter       LeaseMinter
	emitter      events.Emitter
	admin        [20]byte
	feeReceiver  [20]byte
	feePercent   uint32
	paymentVault [20]byte
	localNetwork string
	nowFn        func() int64
}

// NewEngine creates a lease engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssetVault configures the escrow collaborator holding original assets.
func (e *Engine) SetAssetVault(vault AssetVault) { e.vault = vault }

// SetLeaseMinter configures the wrapped usage-rights collaborator.
func (e *Engine) SetLeaseMinter(minter LeaseMinter) { e.minter = minter }

// SetAdmin configures the administrative identity allowed to whitelist
// collections and trigger refunds.
func (e *Engine) SetAdmin(addr [20]byte) { e.admin = addr }

// SetFeeTerms configures the fee receiver and the platform fee percentage
// applied to every reward payout.
func (e *Engine) SetFeeTerms(receiver [20]byte, percent uint32) {
	e.feeReceiver = receiver
	if percent > fees.MaxPercent {
		percent = fees.MaxPercent
	}
	e.feePercent = percent
}

// SetPaymentVault configures the account holding lease payments between
// borrow and claim.
func (e *Engine) SetPaymentVault(addr [20]byte) { e.paymentVault = addr }

// SetLocalNetwork configures the identifier recorded as the origin network for
// borrows submitted directly to this ledger.
func (e *Engine) SetLocalNetwork(name string) { e.localNetwork = strings.TrimSpace(name) }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(leaseEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadListing(collection [20]byte, assetID uint64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listing, ok := e.state.ListingGet(ListingKey(collection, assetID))
	if !ok {
		return nil, ErrListingNotFound
	}
	return listing, nil
}

func (e *Engine) storeListing(l *Listing) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.ListingPut(l)
}

// balanceLedger stages settlement-currency movements in memory. Balances are
// validated as movements are staged; nothing is written until commit, which
// runs only after every fallible collaborator call and record write in the
// operation has succeeded.
type balanceLedger struct {
	state    engineState
	accounts map[[20]byte]*types.Account
	order    [][20]byte
}

func (e *Engine) newLedger() (*balanceLedger, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return &balanceLedger{state: e.state, accounts: make(map[[20]byte]*types.Account)}, nil
}

func (l *balanceLedger) account(addr [20]byte) (*types.Account, error) {
	if acc, ok := l.accounts[addr]; ok {
		return acc, nil
	}
	acc, err := l.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	acc = types.EnsureAccount(acc)
	l.accounts[addr] = acc
	l.order = append(l.order, addr)
	return acc, nil
}

// transfer stages a balance movement between two accounts.
func (l *balanceLedger) transfer(from, to [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("lease: negative transfer amount")
	}
	fromAcc, err := l.account(from)
	if err != nil {
		return err
	}
	toAcc, err := l.account(to)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("lease: insufficient balance")
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	return nil
}

// credit stages newly arrived settlement currency into an account. Used when
// the payment for a relayed borrow arrived alongside the cross-network message
// rather than from a local account.
func (l *balanceLedger) credit(to [20]byte, amount *big.Int) error {
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil
	}
	acc, err := l.account(to)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amt)
	return nil
}

// commit writes the staged balances in load order.
func (l *balanceLedger) commit() error {
	for _, addr := range l.order {
		if err := l.state.PutAccount(addr[:], l.accounts[addr]); err != nil {
			return err
		}
	}
	return nil
}

// Lend escrows the asset and records the owner's lease terms. The caller must
// hold the asset and have authorized its transfer.
func (e *Engine) Lend(caller, collection [20]byte, assetID uint64, price *big.Int, minTime, maxTime, deadline int64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.vault == nil {
		return nil, errNilVault
	}
	amount := cloneBigInt(price)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("lease: price must be positive")
	}
	if minTime <= 0 || maxTime < minTime {
		return nil, ErrTermsOutOfBounds
	}
	if deadline < 0 {
		return nil, ErrTermsOutOfBounds
	}
	if _, ok := e.state.ListingGet(ListingKey(collection, assetID)); ok {
		return nil, ErrListingExists
	}
	if err := e.vault.Custody(collection, assetID, caller); err != nil {
		return nil, err
	}
	listing := &Listing{
		Collection:   collection,
		AssetID:      assetID,
		Owner:        caller,
		Price:        amount,
		MinTime:      minTime,
		MaxTime:      maxTime,
		Deadline:     deadline,
		LatestReward: big.NewInt(0),
		TotalRewards: big.NewInt(0),
	}
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	e.emit(NewListedEvent(listing))
	return listing.Clone(), nil
}

// Borrow starts a lease for a borrower transacting on this ledger. The payment
// is debited from the borrower's account.
func (e *Engine) Borrow(caller, collection [20]byte, assetID uint64, expires int64, payment *big.Int) (*Listing, error) {
	listing, err := e.prepareBorrow(collection, assetID, expires, payment)
	if err != nil {
		return nil, err
	}
	ledger, err := e.newLedger()
	if err != nil {
		return nil, err
	}
	if err := ledger.transfer(caller, e.paymentVault, payment); err != nil {
		return nil, err
	}
	return e.settleBorrow(listing, caller, e.localNetwork, expires, payment, ledger)
}

// BorrowRemote starts a lease on behalf of a borrower whose request was
// authenticated by the relay gateway. The payment accompanied the message, so
// the vault is credited directly.
func (e *Engine) BorrowRemote(borrower, collection [20]byte, assetID uint64, expires int64, originNetwork string, payment *big.Int) (*Listing, error) {
	listing, err := e.prepareBorrow(collection, assetID, expires, payment)
	if err != nil {
		return nil, err
	}
	ledger, err := e.newLedger()
	if err != nil {
		return nil, err
	}
	if err := ledger.credit(e.paymentVault, payment); err != nil {
		return nil, err
	}
	return e.settleBorrow(listing, borrower, originNetwork, expires, payment, ledger)
}

func (e *Engine) prepareBorrow(collection [20]byte, assetID uint64, expires int64, payment *big.Int) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.minter == nil {
		return nil, errNilMinter
	}
	listing, err := e.loadListing(collection, assetID)
	if err != nil {
		return nil, err
	}
	if _, ok := e.state.WrappedGet(collection); !ok {
		return nil, ErrNotWhitelisted
	}
	if payment == nil || listing.Price.Cmp(payment) != 0 {
		return nil, ErrWrongPayment
	}
	now := e.now()
	duration := expires - now
	if duration < listing.MinTime || duration > listing.MaxTime {
		return nil, ErrTermsOutOfBounds
	}
	if listing.Deadline != 0 && now > listing.Deadline {
		return nil, ErrTermsOutOfBounds
	}
	if listing.Active(now) {
		return nil, ErrLeaseActive
	}
	return listing, nil
}

// settleBorrow records the new lease segment. The payment stays staged until
// the mint and the record write have both succeeded.
func (e *Engine) settleBorrow(listing *Listing, borrower [20]byte, originNetwork string, expires int64, payment *big.Int, ledger *balanceLedger) (*Listing, error) {
	now := e.now()
	// An unclaimed reward from the previous finalized segment is overwritten
	// here. Owners must claim before the next segment starts.
	listing.Borrower = borrower
	listing.OriginNetwork = strings.TrimSpace(originNetwork)
	listing.StartedAt = now
	listing.Expires = expires
	listing.LatestReward = cloneBigInt(payment)
	listing.TotalRewards = new(big.Int).Add(listing.TotalRewards, payment)
	wrapped, ok := e.state.WrappedGet(listing.Collection)
	if !ok {
		return nil, ErrNotWhitelisted
	}
	if err := e.minter.MintLease(wrapped, listing.AssetID, borrower, expires); err != nil {
		return nil, err
	}
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	if err := ledger.commit(); err != nil {
		return nil, err
	}
	e.emit(NewLeaseStartedEvent(listing))
	return listing.Clone(), nil
}

// ClaimRewards pays out the finalized reward for a listing, split between the
// fee receiver and the owner. A reward is finalized once its lease segment has
// expired; an active segment's payment is not yet claimable.
func (e *Engine) ClaimRewards(caller, collection [20]byte, assetID uint64) (*big.Int, error) {
	listing, err := e.loadListing(collection, assetID)
	if err != nil {
		return nil, err
	}
	if listing.Owner != caller {
		return nil, ErrNotOwner
	}
	if listing.LatestReward.Sign() == 0 || e.now() < listing.Expires {
		return nil, ErrNothingToClaim
	}
	ledger, err := e.newLedger()
	if err != nil {
		return nil, err
	}
	paid, err := e.stagePayout(listing, ledger)
	if err != nil {
		return nil, err
	}
	if err := e.storeListing(listing); err != nil {
		return nil, err
	}
	if err := ledger.commit(); err != nil {
		return nil, err
	}
	e.emit(NewRewardsClaimedEvent(listing, paid))
	return paid, nil
}

// stagePayout stages the fee split of the pending reward and zeroes it on the
// record. Callers persist the zeroed record (or delete it, for unstake) before
// committing the ledger.
func (e *Engine) stagePayout(listing *Listing, ledger *balanceLedger) (*big.Int, error) {
	reward := cloneBigInt(listing.LatestReward)
	fee, net := fees.Calculate(reward, e.feePercent)
	if fee.Sign() > 0 {
		if err := ledger.transfer(e.paymentVault, e.feeReceiver, fee); err != nil {
			return nil, err
		}
	}
	if net.Sign() > 0 {
		if err := ledger.transfer(e.paymentVault, listing.Owner, net); err != nil {
			return nil, err
		}
	}
	listing.LatestReward = big.NewInt(0)
	return reward, nil
}

// Unstake returns the escrowed asset to its owner and deletes the listing in
// full. Any pending reward is paid out first when autoClaim is set; otherwise
// it is forfeited with the record.
func (e *Engine) Unstake(caller, collection [20]byte, assetID uint64, autoClaim bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.vault == nil {
		return errNilVault
	}
	listing, err := e.loadListing(collection, assetID)
	if err != nil {
		return err
	}
	if listing.Owner != caller {
		return ErrNotOwner
	}
	if listing.Active(e.now()) {
		return ErrLeaseActive
	}
	ledger, err := e.newLedger()
	if err != nil {
		return err
	}
	if autoClaim && listing.LatestReward.Sign() > 0 {
		if _, err := e.stagePayout(listing, ledger); err != nil {
			return err
		}
	}
	if listing.Borrower != ([20]byte{}) {
		if err := e.burnWrapped(listing); err != nil {
			return err
		}
	}
	if err := e.vault.Release(collection, assetID, listing.Owner); err != nil {
		return err
	}
	if err := e.state.ListingDelete(listing.Key()); err != nil {
		return err
	}
	if err := ledger.commit(); err != nil {
		return err
	}
	e.emit(NewUnstakedEvent(listing))
	return nil
}

// Refund is the administrative escape hatch for leases whose settlement cannot
// proceed normally. It returns the pending payment to the recipient and clears
// the lease fields while keeping the listing terms intact. Refunds may only be
// triggered once the current segment is at least RefundDelay old.
func (e *Engine) Refund(caller, collection [20]byte, assetID uint64, recipient [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.admin {
		return ErrNotAdmin
	}
	listing, err := e.loadListing(collection, assetID)
	if err != nil {
		return err
	}
	if listing.LatestReward.Sign() == 0 {
		return ErrNothingToClaim
	}
	if e.now() < listing.StartedAt+RefundDelay {
		return ErrRefundTooEarly
	}
	ledger, err := e.newLedger()
	if err != nil {
		return err
	}
	if err := ledger.transfer(e.paymentVault, recipient, listing.LatestReward); err != nil {
		return err
	}
	if listing.Borrower != ([20]byte{}) {
		if err := e.burnWrapped(listing); err != nil {
			return err
		}
	}
	refunded := listing.Clone()
	listing.Borrower = [20]byte{}
	listing.OriginNetwork = ""
	listing.Expires = 0
	listing.StartedAt = 0
	listing.LatestReward = big.NewInt(0)
	if err := e.storeListing(listing); err != nil {
		return err
	}
	if err := ledger.commit(); err != nil {
		return err
	}
	e.emit(NewRefundedEvent(refunded, recipient))
	return nil
}

func (e *Engine) burnWrapped(listing *Listing) error {
	if e.minter == nil {
		return errNilMinter
	}
	wrapped, ok := e.state.WrappedGet(listing.Collection)
	if !ok {
		// Collection was never whitelisted; no wrapped token to burn.
		return nil
	}
	return e.minter.BurnLease(wrapped, listing.AssetID)
}

// LendingInfo returns the full listing record for a (collection, asset id)
// key. When no listing exists, a zero-valued record is returned so unset
// fields read as zero.
func (e *Engine) LendingInfo(collection [20]byte, assetID uint64) (*Listing, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	listing, ok := e.state.ListingGet(ListingKey(collection, assetID))
	if !ok {
		empty := &Listing{Collection: collection, AssetID: assetID}
		return empty.Clone(), false
	}
	return listing.Clone(), true
}

// Whitelist registers the wrapped usage-rights collection for an original
// collection. Entries are append-only; an existing entry cannot be replaced.
func (e *Engine) Whitelist(caller, original, wrapped [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.admin {
		return ErrNotAdmin
	}
	if e.minter == nil {
		return errNilMinter
	}
	if _, ok := e.state.WrappedGet(original); ok {
		return ErrAlreadyWhitelisted
	}
	if err := e.minter.Adopt(wrapped); err != nil {
		return err
	}
	if err := e.state.WrappedPut(original, wrapped); err != nil {
		return err
	}
	e.emit(NewWhitelistedEvent(original, wrapped))
	return nil
}

// SetOriginal records the remote-network address of an asset whose canonical
// escrow lives on another ledger. Lookup-only bookkeeping for networks hosting
// the wrapped side of a cross-network lease.
func (e *Engine) SetOriginal(caller [20]byte, network string, remote [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.admin {
		return ErrNotAdmin
	}
	trimmed := strings.TrimSpace(network)
	if trimmed == "" {
		return fmt.Errorf("lease: empty network identifier")
	}
	return e.state.OriginalPut(trimmed, remote)
}

// Original resolves a previously recorded remote asset address.
func (e *Engine) Original(network string) ([20]byte, bool) {
	if e == nil || e.state == nil {
		return [20]byte{}, false
	}
	return e.state.OriginalGet(strings.TrimSpace(network))
}
