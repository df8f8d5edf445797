// Package market supplies synthetic trend signal sources for running the
// engine without real capture workers.
package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MahyudeenShahid/trade-analysis/internal/engine"
	"github.com/MahyudeenShahid/trade-analysis/internal/persistence"
	"github.com/MahyudeenShahid/trade-analysis/internal/state"
	"github.com/MahyudeenShahid/trade-analysis/pkg/cache"
	"github.com/MahyudeenShahid/trade-analysis/pkg/db"
)

// Window is one synthetic capture worker's identity.
type Window struct {
	WindowID string
	Ticker   string
}

// MockFeed generates random-walk ticks for local development, one worker
// goroutine per window, matching how real capture workers deliver ticks
// concurrently.
type MockFeed struct {
	Engine     *engine.Engine
	Recorder   *persistence.Recorder
	Cache      *cache.TickCache
	Windows    []Window
	StartPrice float64
	Step       float64
	Interval   time.Duration
	Logger     zerolog.Logger

	wg sync.WaitGroup
}

// Start launches one feed goroutine per window. Cancel ctx to stop them,
// then Wait for the goroutines to finish.
func (m *MockFeed) Start(ctx context.Context) {
	if m.Engine == nil {
		m.Logger.Warn().Msg("mock feed: engine not set")
		return
	}
	if len(m.Windows) == 0 {
		m.Windows = []Window{{WindowID: "mock-1", Ticker: "MOCK"}}
	}
	if m.StartPrice <= 0 {
		m.StartPrice = 100.0
	}
	if m.Step <= 0 {
		m.Step = 0.5
	}
	if m.Interval <= 0 {
		m.Interval = time.Second
	}

	m.Logger.Info().
		Int("windows", len(m.Windows)).
		Dur("interval", m.Interval).
		Msg("mock feed started")

	for _, w := range m.Windows {
		m.wg.Add(1)
		go m.run(ctx, w)
	}
}

// Wait blocks until every feed goroutine has stopped.
func (m *MockFeed) Wait() {
	m.wg.Wait()
}

func (m *MockFeed) run(ctx context.Context, w Window) {
	defer m.wg.Done()

	price := m.StartPrice
	t := time.NewTicker(m.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			delta := (rand.Float64()*2 - 1) * m.Step
			price += delta
			if price < m.Step {
				price = m.Step
			}
			price = math.Round(price*100) / 100

			trend := state.TrendFlat
			switch {
			case delta > 0.1*m.Step:
				trend = state.TrendUp
			case delta < -0.1*m.Step:
				trend = state.TrendDown
			}

			now := time.Now().UTC()
			m.Engine.ProcessTick(engine.Tick{
				WindowID: w.WindowID,
				Ticker:   w.Ticker,
				Price:    price,
				Trend:    trend,
				TS:       now,
			})

			if m.Cache != nil {
				m.Cache.Set(cache.Entry{
					WindowID: w.WindowID,
					Ticker:   w.Ticker,
					Price:    price,
					Trend:    string(trend),
					TS:       now,
				})
			}
			if m.Recorder != nil {
				m.Recorder.RecordObservation(db.Observation{
					WindowID: w.WindowID,
					Ticker:   w.Ticker,
					Price:    price,
					Trend:    string(trend),
					TS:       now,
				})
			}
		}
	}
}
