package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MahyudeenShahid/trade-analysis/pkg/db"
)

// ErrUnknownWindow is returned by accessors that require the window to
// already exist.
var ErrUnknownWindow = errors.New("unknown window")

// Manager owns every BotState and serializes access per window. Ticks for
// different windows proceed in parallel; evaluate-then-apply for a single
// window runs under that window's lock.
type Manager struct {
	mu   sync.RWMutex
	bots map[string]*slot
	db   *db.Database
}

type slot struct {
	mu sync.Mutex
	bs BotState
}

func NewManager(database *db.Database) *Manager {
	return &Manager{
		db:   database,
		bots: make(map[string]*slot),
	}
}

func newBotState(windowID string) BotState {
	return BotState{
		WindowID: windowID,
		Position: PositionNone,
		Config:   DefaultConfig(),
	}
}

// Load seeds configured windows and their lifetime trade aggregates from
// the database. Call once at startup, before ticks flow.
func (m *Manager) Load(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	bots, err := m.db.ListBots(ctx)
	if err != nil {
		return fmt.Errorf("load bots: %w", err)
	}
	stats, err := m.db.LoadTradeStats(ctx)
	if err != nil {
		return fmt.Errorf("load trade stats: %w", err)
	}
	last, err := m.db.LastTrades(ctx)
	if err != nil {
		return fmt.Errorf("load last trades: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bots {
		s := m.bots[b.WindowID]
		if s == nil {
			s = &slot{bs: newBotState(b.WindowID)}
			m.bots[b.WindowID] = s
		}
		s.bs.Name = b.Name
		s.bs.Ticker = b.Ticker
		s.bs.Config = ConfigFromBot(b)
	}
	for _, st := range stats {
		s := m.bots[st.WindowID]
		if s == nil {
			s = &slot{bs: newBotState(st.WindowID)}
			m.bots[st.WindowID] = s
		}
		s.bs.TotalPnL = st.TotalPnL
		s.bs.Wins = st.Wins
		s.bs.Losses = st.Losses
		s.bs.TradeCount = st.Trades
		if s.bs.Ticker == "" {
			s.bs.Ticker = st.Ticker
		}
	}
	for id, t := range last {
		if s := m.bots[id]; s != nil {
			rec := RecordFromTrade(t)
			s.bs.LastTrade = &rec
		}
	}
	return nil
}

// slotFor returns the window's slot, creating it on first use.
func (m *Manager) slotFor(windowID string) *slot {
	m.mu.RLock()
	s := m.bots[windowID]
	m.mu.RUnlock()
	if s != nil {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s = m.bots[windowID]; s == nil {
		s = &slot{bs: newBotState(windowID)}
		m.bots[windowID] = s
	}
	return s
}

func (m *Manager) lookup(windowID string) *slot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bots[windowID]
}

// Update runs fn with exclusive access to the window's state, creating
// the window on first use, and returns the post-update snapshot. No other
// tick or config change for the same window can interleave with fn.
func (m *Manager) Update(windowID string, fn func(*BotState)) Snapshot {
	s := m.slotFor(windowID)
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.bs)
	s.bs.UpdatedAt = time.Now().UTC()
	return s.bs.Snapshot()
}

// UpdateExisting is Update for windows that must already exist.
func (m *Manager) UpdateExisting(windowID string, fn func(*BotState)) (Snapshot, error) {
	s := m.lookup(windowID)
	if s == nil {
		return Snapshot{}, ErrUnknownWindow
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.bs)
	s.bs.UpdatedAt = time.Now().UTC()
	return s.bs.Snapshot(), nil
}

// ApplyPatch overlays a partial config update on the window's current
// config, under the window lock. An invalid result is rejected and the
// prior config stays in effect.
func (m *Manager) ApplyPatch(windowID string, p ConfigPatch) (RuleConfig, error) {
	s := m.slotFor(windowID)
	s.mu.Lock()
	defer s.mu.Unlock()
	next := p.Apply(s.bs.Config)
	if err := next.Validate(); err != nil {
		return s.bs.Config, err
	}
	s.bs.Config = next
	s.bs.UpdatedAt = time.Now().UTC()
	return next, nil
}

// Config returns the window's current rule configuration.
func (m *Manager) Config(windowID string) (RuleConfig, error) {
	s := m.lookup(windowID)
	if s == nil {
		return RuleConfig{}, ErrUnknownWindow
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bs.Config, nil
}

// Snapshot returns the window's current snapshot.
func (m *Manager) Snapshot(windowID string) (Snapshot, error) {
	s := m.lookup(windowID)
	if s == nil {
		return Snapshot{}, ErrUnknownWindow
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bs.Snapshot(), nil
}

// Snapshots returns every window's snapshot, ordered by window id.
func (m *Manager) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, m.Len())
	for _, s := range m.slots() {
		s.mu.Lock()
		out = append(out, s.bs.Snapshot())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowID < out[j].WindowID })
	return out
}

// Summary returns the window's lifetime accounting view.
func (m *Manager) Summary(windowID string) (Summary, error) {
	s := m.lookup(windowID)
	if s == nil {
		return Summary{}, ErrUnknownWindow
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bs.Summary(), nil
}

// Summaries returns every window's accounting view, ordered by window id.
func (m *Manager) Summaries() []Summary {
	out := make([]Summary, 0, m.Len())
	for _, s := range m.slots() {
		s.mu.Lock()
		out = append(out, s.bs.Summary())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowID < out[j].WindowID })
	return out
}

// WindowIDs returns the ids of all tracked windows, sorted.
func (m *Manager) WindowIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.bots))
	for id := range m.bots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) slots() []*slot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*slot, 0, len(m.bots))
	for _, s := range m.bots {
		out = append(out, s)
	}
	return out
}

// Len reports the number of tracked windows.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bots)
}

// Remove drops a window's state entirely. Reports whether it existed.
func (m *Manager) Remove(windowID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bots[windowID]; !ok {
		return false
	}
	delete(m.bots, windowID)
	return true
}

// Clear drops every window.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bots = make(map[string]*slot)
}
