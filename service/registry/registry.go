package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/gatewatch/gatewatch/service/metrics"
)

var (
	// ErrCapacityReached is returned by Add when the watch set is full.
	ErrCapacityReached = errors.New("watched address capacity reached")
	// ErrAlreadyWatched is returned by Add when the address is already active.
	ErrAlreadyWatched = errors.New("address already watched")
	// ErrInvalidAddress is returned by Add when the address is not valid base58.
	ErrInvalidAddress = errors.New("invalid address")
)

// WatchedAddress is a single entry in the watch set.
type WatchedAddress struct {
	Address      string
	Cursor       *string // last-processed activity id; nil until the first successful poll
	Active       bool
	RegisteredAt time.Time
}

// Stats describes the registry's capacity state.
type Stats struct {
	CurrentCount int  `json:"current_count"`
	MaxWallets   int  `json:"max_wallets"`
	CanAddMore   bool `json:"can_add_more"`
}

// Registry owns the watched address set and the per-address cursors.
// All state lives inside the Run goroutine; mutations and reads arrive as
// commands over a channel, so no lock is needed and no caller can observe a
// torn update. State is intentionally in-memory only and rebuilds empty on
// restart.
type Registry struct {
	commands chan command
	pollNow  chan string

	maxAddresses int
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type command struct {
	kind    commandKind
	address string
	cursor  string
	reply   chan reply
}

type commandKind int

const (
	cmdAdd commandKind = iota
	cmdRemove
	cmdList
	cmdStats
	cmdCommitCursor
)

type reply struct {
	watch   *WatchedAddress
	watches []WatchedAddress
	stats   Stats
	removed bool
	err     error
}

// NewRegistry creates a registry bounded at maxAddresses entries.
// Call Run to start the owning goroutine before using any other method.
func NewRegistry(maxAddresses int, m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{
		commands:     make(chan command),
		pollNow:      make(chan string, maxAddresses),
		maxAddresses: maxAddresses,
		logger:       logger,
		metrics:      m,
	}
}

// Run executes the owning loop until ctx is cancelled. It must be running for
// Add, Remove, List, Stats and CommitCursor to make progress.
func (r *Registry) Run(ctx context.Context) {
	watches := make(map[string]*WatchedAddress)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-r.commands:
			cmd.reply <- r.handle(watches, cmd)
		}
	}
}

func (r *Registry) handle(watches map[string]*WatchedAddress, cmd command) reply {
	switch cmd.kind {
	case cmdAdd:
		if _, ok := watches[cmd.address]; ok {
			return reply{err: fmt.Errorf("%w: %s", ErrAlreadyWatched, cmd.address)}
		}
		if len(watches) >= r.maxAddresses {
			return reply{err: fmt.Errorf("%w: %d of %d in use", ErrCapacityReached, len(watches), r.maxAddresses)}
		}
		w := &WatchedAddress{
			Address:      cmd.address,
			Active:       true,
			RegisteredAt: time.Now().UTC(),
		}
		watches[cmd.address] = w
		if r.metrics != nil {
			r.metrics.SetWatchedAddresses(len(watches))
		}
		r.logger.Info("address registered", "address", cmd.address, "count", len(watches))

		// Kick an out-of-cycle poll so the first events show up without
		// waiting for the next tick. Best effort; the ticker covers a miss.
		select {
		case r.pollNow <- cmd.address:
		default:
		}

		snapshot := *w
		return reply{watch: &snapshot}

	case cmdRemove:
		_, ok := watches[cmd.address]
		delete(watches, cmd.address)
		if ok {
			if r.metrics != nil {
				r.metrics.SetWatchedAddresses(len(watches))
			}
			r.logger.Info("address removed", "address", cmd.address, "count", len(watches))
		}
		return reply{removed: ok}

	case cmdList:
		out := make([]WatchedAddress, 0, len(watches))
		for _, w := range watches {
			out = append(out, *w)
		}
		return reply{watches: out}

	case cmdStats:
		return reply{stats: Stats{
			CurrentCount: len(watches),
			MaxWallets:   r.maxAddresses,
			CanAddMore:   len(watches) < r.maxAddresses,
		}}

	case cmdCommitCursor:
		w, ok := watches[cmd.address]
		if !ok {
			// Address removed while its batch was in flight; nothing to do.
			return reply{}
		}
		cursor := cmd.cursor
		w.Cursor = &cursor
		return reply{}
	}

	return reply{err: fmt.Errorf("unknown registry command %d", cmd.kind)}
}

func (r *Registry) send(ctx context.Context, cmd command) (reply, error) {
	cmd.reply = make(chan reply, 1)
	select {
	case r.commands <- cmd:
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
	select {
	case out := <-cmd.reply:
		return out, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

// Add registers an address for monitoring. The address must be valid base58.
// Adding an address that is already watched returns ErrAlreadyWatched; adding
// past capacity returns ErrCapacityReached.
func (r *Registry) Add(ctx context.Context, address string) (*WatchedAddress, error) {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, address, err)
	}
	out, err := r.send(ctx, command{kind: cmdAdd, address: address})
	if err != nil {
		return nil, err
	}
	return out.watch, out.err
}

// Remove deletes an address from the watch set. It reports whether the
// address was present; removing an unknown address is not an error.
func (r *Registry) Remove(ctx context.Context, address string) (bool, error) {
	out, err := r.send(ctx, command{kind: cmdRemove, address: address})
	if err != nil {
		return false, err
	}
	return out.removed, nil
}

// List returns a snapshot copy of all watched addresses.
func (r *Registry) List(ctx context.Context) ([]WatchedAddress, error) {
	out, err := r.send(ctx, command{kind: cmdList})
	if err != nil {
		return nil, err
	}
	return out.watches, nil
}

// Stats returns the current capacity state.
func (r *Registry) Stats(ctx context.Context) (Stats, error) {
	out, err := r.send(ctx, command{kind: cmdStats})
	if err != nil {
		return Stats{}, err
	}
	return out.stats, nil
}

// CommitCursor records the newest processed activity id for an address.
// Only the poller calls this, and only after the whole batch behind the
// cursor has been persisted. Committing for a removed address is a no-op.
func (r *Registry) CommitCursor(ctx context.Context, address, cursor string) error {
	_, err := r.send(ctx, command{kind: cmdCommitCursor, address: address, cursor: cursor})
	return err
}

// PollNow yields addresses that should be polled immediately after
// registration, outside the regular tick cycle.
func (r *Registry) PollNow() <-chan string {
	return r.pollNow
}
