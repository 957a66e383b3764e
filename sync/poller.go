package sync

import (
	"context"
	"time"

	"github.com/covault-labs/custody/chainoracle"
	"github.com/covault-labs/custody/vaulterr"
)

// PolicyWatcher is the subset of storage the poller needs to enumerate
// which descriptors to poll and to persist what it learns.
type PolicyWatcher interface {
	WatchedDescriptors() ([]string, error)
	SaveUTXOs(descriptor string, utxos []chainoracle.UTXO) error
}

// Poller runs the chain-oracle polling task named in §4.6/§5: on a
// fixed interval it asks the oracle for every watched policy's current
// UTXO set and persists the result. It runs as its own goroutine,
// independent of the relay sync loop, per §5's task-per-concern model.
type Poller struct {
	oracle   chainoracle.Oracle
	watcher  PolicyWatcher
	interval time.Duration
}

// NewPoller builds a Poller polling at the given interval.
func NewPoller(oracle chainoracle.Oracle, watcher PolicyWatcher, interval time.Duration) *Poller {
	return &Poller{oracle: oracle, watcher: watcher, interval: interval}
}

// Run blocks, polling every interval until ctx is cancelled. Each tick's
// chain-oracle calls are individually bounded to 30s per §5, regardless
// of the outer ctx's deadline.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.tick(ctx); err != nil && vaulterr.IsTransient(err) {
				continue // transient chain errors are retried next tick
			} else if err != nil {
				return err
			}
		}
	}
}

func (p *Poller) tick(ctx context.Context) error {
	descriptors, err := p.watcher.WatchedDescriptors()
	if err != nil {
		return vaulterr.Storage("listing watched descriptors", err)
	}
	for _, d := range descriptors {
		callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		utxos, err := p.oracle.ListUTXOs(callCtx, d)
		cancel()
		if err != nil {
			return err
		}
		if err := p.watcher.SaveUTXOs(d, utxos); err != nil {
			return vaulterr.Storage("saving polled utxos", err)
		}
	}
	return nil
}
