package models

import (
	"fmt"
	"strings"
)

// NewAlert renders the notification for a signal.
func NewAlert(s Signal) Alert {
	return Alert{Signal: s, Text: FormatAlert(s)}
}

// FormatAlert renders the one-line alert text for a signal.
func FormatAlert(s Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s @ %s | SL %s | TP1 %s | RR %.2f | score %.0f",
		strings.ToUpper(string(s.Side)), s.Symbol, s.Timeframe,
		price(s.Entry), price(s.Stop), price(s.TP1), s.RR, s.Score)
	if s.Strategy != "" {
		b.WriteString(" | " + s.Strategy)
	}
	if s.Meta != nil {
		fmt.Fprintf(&b, " | p=%.2f", s.Meta.Prob)
	}
	if len(s.Reasons) > 0 {
		b.WriteString(" | " + strings.Join(s.Reasons, ", "))
	}
	return b.String()
}

func price(v float64) string {
	switch {
	case v >= 1000:
		return fmt.Sprintf("%.2f", v)
	case v >= 1:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.6f", v)
	}
}
