package gate

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrAlreadyPaused is returned when pausing an already-paused system.
var ErrAlreadyPaused = errors.New("contract is already paused")

// ErrNotPaused is returned when unpausing a system that is not paused.
var ErrNotPaused = errors.New("contract is not paused")

// ErrAlreadyBlacklisted is returned when blacklisting a token twice.
var ErrAlreadyBlacklisted = errors.New("token is already blacklisted")

// ErrNotBlacklisted is returned when removing a token that is not blacklisted.
var ErrNotBlacklisted = errors.New("token is not blacklisted")

// ErrNotAdministrator is returned when a non-administrator invokes an
// administrative operation.
var ErrNotAdministrator = errors.New("caller is not the administrator")

// AccessGate is the read side consumed by the engine on every operation.
type AccessGate interface {
	// IsPaused reports whether the whole system is paused.
	IsPaused() bool

	// IsBlacklisted reports whether locking or adding the token is denied.
	IsBlacklisted(token common.Address) bool

	// IsAdministrator reports whether the caller holds the single
	// administrator role.
	IsAdministrator(caller common.Address) bool
}

// AdminGate adds the administrator mutations. Both pause and blacklist are
// two-state machines with guarded transitions: repeating a transition that
// would not change state is an error, never a silent no-op.
type AdminGate interface {
	AccessGate

	Pause() error
	Unpause() error
	Blacklist(token common.Address) error
	Unblacklist(token common.Address) error
}

// Gate is the in-memory AdminGate with a single fixed administrator.
type Gate struct {
	mu        sync.RWMutex
	admin     common.Address
	paused    bool
	blacklist map[common.Address]struct{}
}

// New creates a gate administered by admin, unpaused, with an empty
// blacklist.
func New(admin common.Address) *Gate {
	return &Gate{
		admin:     admin,
		blacklist: make(map[common.Address]struct{}),
	}
}

// Make sure we conform to the interface
var _ AdminGate = (*Gate)(nil)

// IsPaused reports the pause flag.
func (g *Gate) IsPaused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

// IsBlacklisted reports whether token is on the deny-list.
func (g *Gate) IsBlacklisted(token common.Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.blacklist[token]
	return ok
}

// IsAdministrator reports whether caller is the administrator.
func (g *Gate) IsAdministrator(caller common.Address) bool {
	return caller == g.admin
}

// Pause sets the pause flag. Fails if already paused.
func (g *Gate) Pause() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return ErrAlreadyPaused
	}
	g.paused = true
	return nil
}

// Unpause clears the pause flag. Fails if not paused.
func (g *Gate) Unpause() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return ErrNotPaused
	}
	g.paused = false
	return nil
}

// Blacklist adds token to the deny-list. Fails if already present.
func (g *Gate) Blacklist(token common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.blacklist[token]; ok {
		return ErrAlreadyBlacklisted
	}
	g.blacklist[token] = struct{}{}
	return nil
}

// Unblacklist removes token from the deny-list. Fails if absent.
func (g *Gate) Unblacklist(token common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.blacklist[token]; !ok {
		return ErrNotBlacklisted
	}
	delete(g.blacklist, token)
	return nil
}
