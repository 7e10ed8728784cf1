package position

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guyghost/perpcore/internal/exchange"
)

// DriftKind classifies how a symbol's local and venue-reported truth disagree.
type DriftKind string

const (
	// DriftGhostLocal: we believe we hold a position the venue does not
	// report: the ghost-position case.
	DriftGhostLocal DriftKind = "ghost_local"
	// DriftGhostRemote: the venue reports a position we have no local record
	// of (e.g. after a crash-restart with state loss).
	DriftGhostRemote DriftKind = "ghost_remote"
	// DriftSizeMismatch: both sides agree a position exists but disagree on
	// size by more than the tolerance.
	DriftSizeMismatch DriftKind = "size_mismatch"
)

// Drift is one detected local/remote disagreement for a symbol.
type Drift struct {
	Symbol     string
	Kind       DriftKind
	LocalSize  decimal.Decimal
	RemoteSize decimal.Decimal
}

// sizeTolerance is the fractional size difference below which two positions
// are still considered reconciled (rounding/szDecimals noise).
var sizeTolerance = decimal.NewFromFloat(0.01)

// Reconciler compares the local Position Book against venue-reported state
// and reports drift without mutating either side; callers decide remediation
// (close the ghost, adopt the remote, or alert an operator).
type Reconciler struct {
	book    *Book
	adapter exchange.Adapter
	wallet  string
}

// NewReconciler builds a Reconciler over book, querying adapter for venue
// truth under the given wallet address.
func NewReconciler(book *Book, adapter exchange.Adapter, wallet string) *Reconciler {
	return &Reconciler{book: book, adapter: adapter, wallet: wallet}
}

// Reconcile fetches venue positions and diffs them against the local book.
// It returns one Drift per symbol that disagrees; an empty slice means the
// books agree.
func (r *Reconciler) Reconcile(ctx context.Context) ([]Drift, error) {
	remote, err := r.adapter.GetPositions(ctx, r.wallet)
	if err != nil {
		return nil, fmt.Errorf("position: reconcile: fetch venue positions: %w", err)
	}
	remoteBySymbol := make(map[string]exchange.Position, len(remote))
	for _, p := range remote {
		remoteBySymbol[p.Symbol] = p
	}

	local := r.book.GetAll()
	localBySymbol := make(map[string]Position, len(local))
	for _, p := range local {
		localBySymbol[p.Symbol] = p
	}

	var drifts []Drift
	for symbol, lp := range localBySymbol {
		rp, ok := remoteBySymbol[symbol]
		if !ok {
			drifts = append(drifts, Drift{Symbol: symbol, Kind: DriftGhostLocal, LocalSize: lp.Size})
			continue
		}
		if sizeDiffFraction(lp.Size, rp.Size).GreaterThan(sizeTolerance) {
			drifts = append(drifts, Drift{Symbol: symbol, Kind: DriftSizeMismatch, LocalSize: lp.Size, RemoteSize: rp.Size})
		}
	}
	for symbol, rp := range remoteBySymbol {
		if _, ok := localBySymbol[symbol]; !ok {
			drifts = append(drifts, Drift{Symbol: symbol, Kind: DriftGhostRemote, RemoteSize: rp.Size})
		}
	}
	return drifts, nil
}

func sizeDiffFraction(a, b decimal.Decimal) decimal.Decimal {
	if a.IsZero() && b.IsZero() {
		return decimal.Zero
	}
	denom := a
	if denom.IsZero() {
		denom = b
	}
	return a.Sub(b).Abs().Div(denom.Abs())
}

// ReconcileOrders cross-checks venue historical orders against orders the
// caller still believes are pending locally, returning the venue historical
// orders that resolved (filled or cancelled) since the last check. pendingIDs is
// keyed by venue order ID.
func (r *Reconciler) ReconcileOrders(ctx context.Context, pendingIDs map[string]struct{}, since time.Time) (resolved []exchange.HistoricalOrder, err error) {
	hist, err := r.adapter.GetHistoricalOrders(ctx, r.wallet, 0)
	if err != nil {
		return nil, fmt.Errorf("position: reconcile orders: %w", err)
	}
	for _, h := range hist {
		if h.ClosedAt.Before(since) {
			continue
		}
		if _, pending := pendingIDs[h.VenueOrderID]; pending {
			resolved = append(resolved, h)
		}
	}
	return resolved, nil
}
