package market

import (
	"sync"

	"marlin/internal/logger"
)

const defaultOIWindow = 500

// OIStore persists open-interest windows across restarts. Persistence is
// best effort; failures are logged and the in-memory window stays live.
type OIStore interface {
	LoadWindow(coin string) ([]float64, error)
	SaveWindow(coin string, window []float64) error
}

// OIAverager keeps a bounded sliding window of open-interest samples per
// instrument and exposes the rolling average, used to contextualize the
// latest reading.
type OIAverager struct {
	store  OIStore
	window int

	mu     sync.Mutex
	bufs   map[string][]float64
	loaded map[string]bool
}

func NewOIAverager(store OIStore, window int) *OIAverager {
	if window <= 0 {
		window = defaultOIWindow
	}
	return &OIAverager{
		store:  store,
		window: window,
		bufs:   make(map[string][]float64),
		loaded: make(map[string]bool),
	}
}

// Update appends a sample, evicting the oldest when the window is full,
// and returns the rolling average and the sample count.
func (o *OIAverager) Update(coin string, latest float64) (avg float64, count int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.loadLocked(coin)
	buf := append(o.bufs[coin], latest)
	if len(buf) > o.window {
		buf = buf[len(buf)-o.window:]
	}
	o.bufs[coin] = buf

	if o.store != nil {
		if err := o.store.SaveWindow(coin, buf); err != nil {
			logger.Warnf("[oi %s] persist window: %v", coin, err)
		}
	}

	var sum float64
	for _, v := range buf {
		sum += v
	}
	return sum / float64(len(buf)), len(buf)
}

// Average reads the current rolling average without adding a sample.
// Zero samples yields (0, 0).
func (o *OIAverager) Average(coin string) (avg float64, count int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.loadLocked(coin)
	buf := o.bufs[coin]
	if len(buf) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range buf {
		sum += v
	}
	return sum / float64(len(buf)), len(buf)
}

func (o *OIAverager) loadLocked(coin string) {
	if o.loaded[coin] {
		return
	}
	o.loaded[coin] = true
	if o.store == nil {
		return
	}
	win, err := o.store.LoadWindow(coin)
	if err != nil {
		logger.Warnf("[oi %s] load persisted window: %v", coin, err)
		return
	}
	if len(win) > o.window {
		win = win[len(win)-o.window:]
	}
	o.bufs[coin] = win
}
