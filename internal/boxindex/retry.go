package boxindex

import (
	"context"
	"database/sql"

	"github.com/cenkalti/backoff/v4"

	"github.com/beadbox/bead/boxerr"
)

// withWrite serializes writers within this process (the in-process half of
// spec.md §5's concurrency model; SQLite's own file locking is the
// cross-process half) and retries the body with bounded exponential backoff
// whenever it fails with SQLITE_BUSY/SQLITE_LOCKED, surfacing IndexBusy once
// the retry budget is exhausted.
func (bi *BoxIndex) withWrite(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if bi.readOnly {
		return boxerr.New(boxerr.IndexReadOnly, "index opened read-only")
	}

	bi.writeMu.Lock()
	defer bi.writeMu.Unlock()

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(bi.opts.busyRetryLimit())), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		tx, err := bi.db.BeginTx(ctx, nil)
		if err != nil {
			if sqlite3BusyOrLocked(err) {
				bi.log.Debug().Int("attempt", attempt).Msg("index busy, retrying begin")
				return err
			}
			return backoff.Permanent(err)
		}

		if err := fn(tx); err != nil {
			tx.Rollback()
			if sqlite3BusyOrLocked(err) {
				bi.log.Debug().Int("attempt", attempt).Msg("index busy, retrying transaction")
				return err
			}
			return backoff.Permanent(err)
		}

		if err := tx.Commit(); err != nil {
			if sqlite3BusyOrLocked(err) {
				bi.log.Debug().Int("attempt", attempt).Msg("index busy, retrying commit")
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(operation, bo); err != nil {
		if sqlite3BusyOrLocked(err) {
			return boxerr.Wrap(boxerr.IndexBusy, err, "index busy after %d attempts", attempt)
		}
		var be *boxerr.Error
		if asBoxerr(err, &be) {
			return be
		}
		return boxerr.Wrap(boxerr.IndexUnwritable, err, "write failed")
	}
	return nil
}

func asBoxerr(err error, target **boxerr.Error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if be, ok := err.(*boxerr.Error); ok {
			*target = be
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
