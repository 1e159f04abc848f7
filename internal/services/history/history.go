// Package history keeps a bounded, indexed record of emitted signals.
package history

import (
	"sort"
	"time"

	"FinSignal/internal/domain/models"
)

type streamTF struct {
	Symbol    string
	Timeframe string
}

// History stores signals in insertion order. It is not safe for concurrent
// use; the worker serializes access.
type History struct {
	max     int
	items   []models.Signal
	byKey   map[models.SignalKey][]int
	byTF    map[streamTF][]int
	byID    map[string]int
	streams map[models.StreamKey][]int
}

func New(max int) *History {
	h := &History{max: max}
	h.reindex()
	return h
}

func (h *History) reindex() {
	h.byKey = make(map[models.SignalKey][]int)
	h.byTF = make(map[streamTF][]int)
	h.byID = make(map[string]int, len(h.items))
	h.streams = make(map[models.StreamKey][]int)
	for i, s := range h.items {
		h.index(i, s)
	}
}

func (h *History) index(i int, s models.Signal) {
	h.byKey[s.Key()] = append(h.byKey[s.Key()], i)
	tf := streamTF{s.Symbol, s.Timeframe}
	h.byTF[tf] = append(h.byTF[tf], i)
	h.streams[s.Stream()] = append(h.streams[s.Stream()], i)
	if s.ID != "" {
		h.byID[s.ID] = i
	}
}

// Len returns the number of stored signals.
func (h *History) Len() int { return len(h.items) }

// Add appends s, evicting the oldest entries beyond capacity. It returns the
// number evicted.
func (h *History) Add(s models.Signal) int {
	h.items = append(h.items, s)
	if h.max > 0 && len(h.items) > h.max {
		evicted := len(h.items) - h.max
		h.items = append([]models.Signal(nil), h.items[evicted:]...)
		h.reindex()
		return evicted
	}
	h.index(len(h.items)-1, s)
	return 0
}

// Replace swaps the whole content, sorted by timestamp and capped.
func (h *History) Replace(signals []models.Signal) {
	items := append([]models.Signal(nil), signals...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.Before(items[j].Timestamp) })
	if h.max > 0 && len(items) > h.max {
		items = items[len(items)-h.max:]
	}
	h.items = items
	h.reindex()
}

// All returns a copy of every signal, oldest first.
func (h *History) All() []models.Signal {
	return append([]models.Signal(nil), h.items...)
}

// Latest returns the most recent signal with the given key.
func (h *History) Latest(key models.SignalKey) (models.Signal, bool) {
	return h.latestOf(h.byKey[key])
}

// LatestInStream returns the most recent signal for symbol and timeframe on either side.
func (h *History) LatestInStream(symbol, timeframe string) (models.Signal, bool) {
	return h.latestOf(h.byTF[streamTF{symbol, timeframe}])
}

func (h *History) latestOf(idx []int) (models.Signal, bool) {
	var (
		best  models.Signal
		found bool
	)
	for _, i := range idx {
		s := h.items[i]
		if !found || !s.Timestamp.Before(best.Timestamp) {
			best, found = s, true
		}
	}
	return best, found
}

// HasNear reports whether a signal with key lies within window of ts.
func (h *History) HasNear(key models.SignalKey, ts time.Time, window time.Duration) bool {
	for _, i := range h.byKey[key] {
		d := h.items[i].Timestamp.Sub(ts)
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
	}
	return false
}

// Recent returns up to n most recent signals of a stream, oldest first.
func (h *History) Recent(stream models.StreamKey, n int) []models.Signal {
	idx := h.streams[stream]
	if n > 0 && len(idx) > n {
		idx = idx[len(idx)-n:]
	}
	out := make([]models.Signal, len(idx))
	for k, i := range idx {
		out[k] = h.items[i]
	}
	return out
}

// Unresolved returns signals for symbol and timeframe still lacking a final outcome.
func (h *History) Unresolved(symbol, timeframe string) []models.Signal {
	var out []models.Signal
	for _, i := range h.byTF[streamTF{symbol, timeframe}] {
		if !h.items[i].Outcome.Resolved() {
			out = append(out, h.items[i])
		}
	}
	return out
}

// Resolve attaches an evaluated outcome to the signal with the trade's id.
func (h *History) Resolve(trade models.EvaluatedTrade) bool {
	i, ok := h.byID[trade.SignalID]
	if !ok {
		return false
	}
	s := &h.items[i]
	s.Outcome = trade.Outcome
	s.R = trade.R
	s.BarsHeld = trade.BarsHeld
	s.OutcomeAt = trade.ExitTime
	return true
}

// Filter returns the newest-first signals matching symbol and timeframe
// (empty matches any), capped at limit.
func (h *History) Filter(symbol, timeframe string, limit int) []models.Signal {
	var out []models.Signal
	for i := len(h.items) - 1; i >= 0; i-- {
		s := h.items[i]
		if symbol != "" && s.Symbol != symbol {
			continue
		}
		if timeframe != "" && s.Timeframe != timeframe {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
