package registry

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrLimitExceeded = errors.New("subscription limit exceeded")
	ErrUnknownClient = errors.New("unknown client")
)

// Registry tracks which client wants which symbols and how many clients
// demand each symbol. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	max     int
	clients map[string]map[string]struct{}
	symbols map[string]map[string]struct{}
}

// -----------------------------------------------------------------------------

func NewRegistry(maxPerClient int) *Registry {
	return &Registry{
		max:     maxPerClient,
		clients: make(map[string]map[string]struct{}),
		symbols: make(map[string]map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------

// NormalizeSymbols trims, upper-cases and de-duplicates, keeping first-seen order.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// -----------------------------------------------------------------------------

// Register creates an empty set for a new session. Registering twice is a no-op.
func (r *Registry) Register(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[clientID]; !ok {
		r.clients[clientID] = make(map[string]struct{})
	}
}

// -----------------------------------------------------------------------------

// Subscribe adds symbols to the client's set. The batch is rejected as a whole
// with ErrLimitExceeded when the current set plus the de-duplicated request
// would exceed the cap. newlyDemanded lists symbols nobody wanted before.
func (r *Registry) Subscribe(clientID string, symbols []string) (subscribed, newlyDemanded []string, err error) {
	symbols = NormalizeSymbols(symbols)

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.clients[clientID]
	if !ok {
		return nil, nil, ErrUnknownClient
	}
	if len(set)+len(symbols) > r.max {
		return nil, nil, ErrLimitExceeded
	}

	for _, s := range symbols {
		set[s] = struct{}{}
		holders, ok := r.symbols[s]
		if !ok {
			holders = make(map[string]struct{})
			r.symbols[s] = holders
		}
		if len(holders) == 0 {
			newlyDemanded = append(newlyDemanded, s)
		}
		holders[clientID] = struct{}{}
	}
	return symbols, newlyDemanded, nil
}

// -----------------------------------------------------------------------------

// Unsubscribe removes symbols from the client's set. Symbols the client did
// not hold are ignored. released lists symbols left with no subscriber.
func (r *Registry) Unsubscribe(clientID string, symbols []string) (removed, released []string) {
	symbols = NormalizeSymbols(symbols)

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.clients[clientID]
	if !ok {
		return nil, nil
	}
	for _, s := range symbols {
		if _, held := set[s]; !held {
			continue
		}
		delete(set, s)
		removed = append(removed, s)
		if r.release(clientID, s) {
			released = append(released, s)
		}
	}
	return removed, released
}

// -----------------------------------------------------------------------------

// Remove drops the client's whole set and returns the symbols it released.
func (r *Registry) Remove(clientID string) (released []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.clients[clientID]
	if !ok {
		return nil
	}
	delete(r.clients, clientID)
	for s := range set {
		if r.release(clientID, s) {
			released = append(released, s)
		}
	}
	sort.Strings(released)
	return released
}

// release must be called with mu held; it reports whether symbol lost its last holder.
func (r *Registry) release(clientID, symbol string) bool {
	holders, ok := r.symbols[symbol]
	if !ok {
		return false
	}
	delete(holders, clientID)
	if len(holders) == 0 {
		delete(r.symbols, symbol)
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

// Subscribers returns the ids of clients subscribed to symbol.
func (r *Registry) Subscribers(symbol string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	holders := r.symbols[symbol]
	if len(holders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(holders))
	for id := range holders {
		ids = append(ids, id)
	}
	return ids
}

// -----------------------------------------------------------------------------

// IsSubscribed reports whether clientID holds symbol.
func (r *Registry) IsSubscribed(clientID, symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[clientID][symbol]
	return ok
}

// -----------------------------------------------------------------------------

// Symbols returns the client's set, sorted.
func (r *Registry) Symbols(clientID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.clients[clientID]
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------

func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Registry) SymbolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.symbols)
}
