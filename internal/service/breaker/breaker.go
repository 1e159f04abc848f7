// Package breaker guards named data sources with circuit breakers.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned when a call is rejected by an open breaker.
var ErrOpen = errors.New("circuit open")

type Config struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Interval         time.Duration
}

func DefaultConfig() Config {
	return Config{FailureThreshold: 3, OpenTimeout: 30 * time.Second, Interval: time.Minute}
}

// StateChange is called on every transition.
type StateChange func(name, from, to string)

// Set lazily creates one breaker per name.
type Set struct {
	mu       sync.Mutex
	cfg      Config
	onChange StateChange
	m        map[string]*gobreaker.CircuitBreaker
}

func NewSet(cfg Config, onChange StateChange) *Set {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	return &Set{cfg: cfg, onChange: onChange, m: make(map[string]*gobreaker.CircuitBreaker)}
}

func (s *Set) get(name string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.m[name]; ok {
		return cb
	}
	threshold := s.cfg.FailureThreshold
	st := gobreaker.Settings{
		Name:     name,
		Interval: s.cfg.Interval,
		Timeout:  s.cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
	}
	if s.onChange != nil {
		st.OnStateChange = func(n string, from, to gobreaker.State) {
			s.onChange(n, from.String(), to.String())
		}
	}
	cb := gobreaker.NewCircuitBreaker(st)
	s.m[name] = cb
	return cb
}

// Execute runs fn through the breaker for name. Rejections map to ErrOpen.
func Execute[T any](s *Set, name string, fn func() (T, error)) (T, error) {
	var zero T
	out, err := s.get(name).Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, ErrOpen
	}
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}

// State returns "closed", "half-open" or "open".
func (s *Set) State(name string) string {
	return s.get(name).State().String()
}

// Open reports whether calls for name are currently rejected.
func (s *Set) Open(name string) bool {
	return s.get(name).State() == gobreaker.StateOpen
}
