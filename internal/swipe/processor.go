// Package swipe is the transaction processor behind every card swipe.
//
// A left swipe never touches the ledger. A right swipe by a seeker spends one
// unit of daily quota and records interest in the job. A right swipe by a
// poster pays for (or, with VIP, is granted) a permanent unlock of the
// seeker's contact details. Each call decides and applies its effect in one
// database transaction and reports an Outcome; storage errors never escape.
package swipe

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sujalbistaa/kiwiblue/internal/models"
	"github.com/sujalbistaa/kiwiblue/internal/store"
)

// errDecided aborts a transaction whose outcome has already been set.
var errDecided = errors.New("swipe decided without commit")

// Options tunes a Processor.
type Options struct {
	DailyQuota int
	ReceiptTTL time.Duration
}

// Processor applies swipes to the ledger. It keeps no per-viewer state.
type Processor struct {
	store      *store.Store
	dailyQuota int
	receiptTTL time.Duration
}

// NewProcessor returns a Processor writing through st.
func NewProcessor(st *store.Store, opts Options) *Processor {
	if opts.DailyQuota <= 0 {
		opts.DailyQuota = 20
	}
	if opts.ReceiptTTL <= 0 {
		opts.ReceiptTTL = 24 * time.Hour
	}
	return &Processor{store: st, dailyQuota: opts.DailyQuota, receiptTTL: opts.ReceiptTTL}
}

// Swipe applies one swipe and reports its outcome.
func (p *Processor) Swipe(ctx context.Context, req Request) Outcome {
	switch req.Direction {
	case Left:
		return Outcome{Result: Skipped}
	case Right:
	default:
		return rejected(ReasonBadDirection)
	}

	if req.IdempotencyKey != "" {
		if out, ok := p.replay(ctx, req); ok {
			return out
		}
	}

	var viewer *models.Account
	err := store.Retry(ctx, func() error {
		var err error
		viewer, err = p.store.Account(ctx, req.ViewerID)
		return err
	})
	if err != nil {
		return p.failure(ctx, req, "load viewer", err, ReasonViewerNotFound)
	}
	if !viewer.Active {
		return rejected(ReasonViewerInactive)
	}

	listing, err := p.store.Listing(ctx, req.ListingID)
	if err != nil {
		return p.failure(ctx, req, "load listing", err, ReasonListingNotFound)
	}
	if listing.OwnerID == viewer.ID {
		return rejected(ReasonOwnListing)
	}

	switch viewer.Role {
	case models.RoleSeeker:
		return p.interest(ctx, req, viewer, listing)
	case models.RolePoster:
		return p.unlock(ctx, req, viewer, listing)
	}
	return rejected(ReasonWrongKind)
}

// Quota reports a seeker's used and total daily quota after any lazy reset.
func (p *Processor) Quota(ctx context.Context, seekerID uint) (used, limit int, err error) {
	acct, err := p.store.Account(ctx, seekerID)
	if err != nil {
		return 0, 0, err
	}
	return acct.QuotaUsed, p.limit(acct), nil
}

func (p *Processor) limit(acct *models.Account) int {
	return p.dailyQuota + acct.ExtraQuota
}

// interest spends one unit of quota and records the seeker's interest. Both
// writes share a transaction so a committed swipe always has both.
func (p *Processor) interest(ctx context.Context, req Request, viewer *models.Account, job *models.Listing) Outcome {
	if job.Kind != models.KindJob {
		return rejected(ReasonWrongKind)
	}
	if job.Status != models.StatusOpen {
		return rejected(ReasonNotOpen)
	}

	var out Outcome
	err := p.execute(ctx, req.IdempotencyKey != "", func() error {
		return p.store.Transaction(ctx, func(tx *store.Store) error {
			ok, err := tx.ConsumeQuota(ctx, viewer.ID, p.dailyQuota)
			if err != nil {
				return err
			}
			if !ok {
				out = Outcome{Result: QuotaExceeded}
				return errDecided
			}
			if job.OwnerID != 0 {
				if err := tx.InsertInterest(ctx, &models.Interest{
					SeekerID:  viewer.ID,
					ListingID: job.ID,
					PosterID:  job.OwnerID,
				}); err != nil {
					return err
				}
			}
			acct, err := tx.Account(ctx, viewer.ID)
			if err != nil {
				return err
			}
			out = Outcome{Result: Committed}.withQuota(acct.QuotaUsed, p.limit(acct))
			return p.saveReceipt(ctx, tx, req, out)
		})
	})

	switch {
	case err == nil:
		p.bumpPopularity(ctx, job.ID)
		return out
	case errors.Is(err, errDecided):
		if acct, err := p.store.Account(ctx, viewer.ID); err == nil {
			out = out.withQuota(acct.QuotaUsed, p.limit(acct))
		}
		return out
	case store.IsUniqueViolation(err) && req.IdempotencyKey != "":
		if replayed, ok := p.replay(ctx, req); ok {
			return replayed
		}
	}
	return p.failure(ctx, req, "record interest", err, ReasonStorage)
}

// unlock charges the poster and records the unlock in one transaction. If
// the unlock insert fails the debit is rolled back with it, so the wallet is
// never short without a matching unlock row.
func (p *Processor) unlock(ctx context.Context, req Request, viewer *models.Account, profile *models.Listing) Outcome {
	if profile.Kind != models.KindProfile {
		return rejected(ReasonWrongKind)
	}
	if profile.Status == models.StatusUnavailable {
		return rejected(ReasonNotOpen)
	}
	seekerID := profile.OwnerID

	has, err := p.store.HasUnlock(ctx, viewer.ID, seekerID)
	if err != nil {
		return p.failure(ctx, req, "check unlock", err, ReasonStorage)
	}
	if has {
		return p.walletOutcome(ctx, viewer.ID, Outcome{Result: AlreadyUnlocked})
	}

	cost := UnlockCost(viewer, profile, p.store.Clock())

	var out Outcome
	// A paid unlock is only replayed when a receipt can catch the duplicate.
	retryable := cost == 0 || req.IdempotencyKey != ""
	err = p.execute(ctx, retryable, func() error {
		return p.store.Transaction(ctx, func(tx *store.Store) error {
			ok, err := tx.Debit(ctx, viewer.ID, cost)
			if err != nil {
				return err
			}
			if !ok {
				out = Outcome{Result: InsufficientFunds, Cost: cost}
				return errDecided
			}
			if err := tx.InsertUnlock(ctx, &models.Unlock{
				PosterID:  viewer.ID,
				SeekerID:  seekerID,
				ListingID: profile.ID,
				Cost:      cost,
			}); err != nil {
				return err
			}
			acct, err := tx.Account(ctx, viewer.ID)
			if err != nil {
				return err
			}
			out = Outcome{Result: Committed, Cost: cost}.withWallet(acct.WalletBalance)
			return p.saveReceipt(ctx, tx, req, out)
		})
	})

	switch {
	case err == nil:
		p.bumpPopularity(ctx, profile.ID)
		return out
	case errors.Is(err, errDecided):
		return p.walletOutcome(ctx, viewer.ID, out)
	case store.IsUniqueViolation(err):
		if req.IdempotencyKey != "" {
			if replayed, ok := p.replay(ctx, req); ok {
				return replayed
			}
		}
		if has, herr := p.store.HasUnlock(ctx, viewer.ID, seekerID); herr == nil && has {
			return p.walletOutcome(ctx, viewer.ID, Outcome{Result: AlreadyUnlocked})
		}
		slog.Error("unlock conflict without unlock row", "viewerId", req.ViewerID, "listingId", req.ListingID, "err", err)
		return rejected(ReasonConflict)
	}
	return p.failure(ctx, req, "unlock", err, ReasonStorage)
}

func (p *Processor) execute(ctx context.Context, retryable bool, op func() error) error {
	if !retryable {
		return op()
	}
	return store.Retry(ctx, op)
}

func (p *Processor) walletOutcome(ctx context.Context, posterID uint, out Outcome) Outcome {
	acct, err := p.store.Account(ctx, posterID)
	if err != nil {
		slog.Warn("reload wallet failed", "accountId", posterID, "err", err)
		return out
	}
	return out.withWallet(acct.WalletBalance)
}

// bumpPopularity is best-effort: the swipe is already committed.
func (p *Processor) bumpPopularity(ctx context.Context, listingID uint) {
	if err := p.store.BumpPopularity(ctx, listingID); err != nil {
		slog.Warn("popularity increment failed", "listingId", listingID, "err", err)
	}
}

func (p *Processor) saveReceipt(ctx context.Context, tx *store.Store, req Request, out Outcome) error {
	if req.IdempotencyKey == "" {
		return nil
	}
	r := &models.SwipeReceipt{
		ViewerID:  req.ViewerID,
		Key:       req.IdempotencyKey,
		ListingID: req.ListingID,
		Result:    string(out.Result),
		Cost:      out.Cost,
		ExpiresAt: p.store.Clock().Add(p.receiptTTL),
	}
	if out.WalletBalance != nil {
		r.WalletBalance = *out.WalletBalance
	}
	if out.QuotaUsed != nil {
		r.QuotaUsed = *out.QuotaUsed
		r.QuotaLimit = *out.QuotaLimit
	}
	return tx.SaveReceipt(ctx, r)
}

// replay returns the stored outcome of an earlier committed swipe with the
// same key. A key reused for a different listing is not replayed.
func (p *Processor) replay(ctx context.Context, req Request) (Outcome, bool) {
	r, err := p.store.Receipt(ctx, req.ViewerID, req.IdempotencyKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("receipt lookup failed", "viewerId", req.ViewerID, "err", err)
		}
		return Outcome{}, false
	}
	if r.ListingID != req.ListingID {
		return rejected(ReasonConflict), true
	}
	out := Outcome{Result: Result(r.Result), Cost: r.Cost, Replayed: true}
	if r.QuotaLimit > 0 {
		return out.withQuota(r.QuotaUsed, r.QuotaLimit), true
	}
	return out.withWallet(r.WalletBalance), true
}

func (p *Processor) failure(ctx context.Context, req Request, op string, err error, missing string) Outcome {
	if errors.Is(err, store.ErrNotFound) {
		return rejected(missing)
	}
	slog.Error("swipe failed", "op", op, "viewerId", req.ViewerID, "listingId", req.ListingID, "err", err)
	return rejected(ReasonStorage)
}
