package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudrift/cloudrift/pkg/bytesize"
	"github.com/rs/zerolog/log"
)

// QuotaView is a snapshot of one user's storage counters.
type QuotaView struct {
	UserID int64
	Used   int64
	Total  int64
}

// Available returns the remaining capacity, never negative.
func (v QuotaView) Available() int64 {
	avail := v.Total - v.Used
	if avail < 0 {
		return 0
	}
	return avail
}

// Accounts is the user-record collaborator the ledger persists quota
// updates through. The engine does not own user records; it only reads
// and advances their capacity counters.
type Accounts interface {
	Quota(ctx context.Context, userID int64) (QuotaView, error)
	SaveQuota(ctx context.Context, view QuotaView) error
}

// Ledger admits or rejects incoming writes against a user's capacity and
// commits verified sizes after a merge has durably published its file.
// Admission must be given the authoritative final size of the finished
// file, not a per-chunk estimate: chunk sizes vary and the last chunk is
// usually short.
type Ledger struct {
	accounts Accounts
	mu       sync.Mutex
}

// NewLedger creates a ledger over the given accounts collaborator.
func NewLedger(accounts Accounts) *Ledger {
	return &Ledger{accounts: accounts}
}

// Admit checks whether incoming bytes fit within the user's remaining
// capacity. It returns ErrQuotaExceeded without mutating anything if the
// write would overflow.
func (l *Ledger) Admit(ctx context.Context, userID int64, incoming int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	view, err := l.accounts.Quota(ctx, userID)
	if err != nil {
		return fmt.Errorf("load quota for user %d: %w", userID, err)
	}

	if view.Used+incoming > view.Total {
		if m := GetMetrics(); m != nil {
			m.QuotaRejections.Inc()
		}
		return fmt.Errorf("%w: need %s, %s available", ErrQuotaExceeded,
			bytesize.Format(incoming), bytesize.Format(view.Available()))
	}
	return nil
}

// Commit increases the user's used capacity by bytes and persists the
// record. It is called only after the merged file is durably readable.
func (l *Ledger) Commit(ctx context.Context, userID int64, bytes int64) (QuotaView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	view, err := l.accounts.Quota(ctx, userID)
	if err != nil {
		return QuotaView{}, fmt.Errorf("load quota for user %d: %w", userID, err)
	}

	view.Used += bytes
	if err := l.accounts.SaveQuota(ctx, view); err != nil {
		return QuotaView{}, fmt.Errorf("persist quota for user %d: %w", userID, err)
	}

	log.Debug().Int64("user", userID).
		Str("used", bytesize.Format(view.Used)).
		Str("total", bytesize.Format(view.Total)).
		Msg("quota committed")
	return view, nil
}
