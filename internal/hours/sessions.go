// Package hours gates evaluation on per-symbol trading sessions, so closed
// markets skip cycles instead of producing signals against stale prices.
package hours

import (
	"fmt"
	"time"

	"smc-signal-engine/config"
)

// minuteOfDay parses "HH:MM" into minutes since midnight.
func minuteOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}

type session struct {
	open        int
	close       int
	hasBreak    bool
	breakStart  int
	breakEnd    int
	tradingDays [7]bool // 0=Monday .. 6=Sunday
}

// Calendar answers whether a symbol's market is open at a given GMT instant.
// Symbols without a configured session are treated as always open.
type Calendar struct {
	sessions map[string]session
}

// NewCalendar builds a calendar from session specs. Invalid specs fail hard
// so a typo in the config cannot silently run a symbol around the clock.
func NewCalendar(specs map[string]config.SessionSpec) (*Calendar, error) {
	cal := &Calendar{sessions: make(map[string]session, len(specs))}

	for symbol, spec := range specs {
		s := session{}
		var err error
		if s.open, err = minuteOfDay(spec.Open); err != nil {
			return nil, fmt.Errorf("session %s open: %w", symbol, err)
		}
		if s.close, err = minuteOfDay(spec.Close); err != nil {
			return nil, fmt.Errorf("session %s close: %w", symbol, err)
		}
		if spec.BreakStart != "" && spec.BreakEnd != "" {
			s.hasBreak = true
			if s.breakStart, err = minuteOfDay(spec.BreakStart); err != nil {
				return nil, fmt.Errorf("session %s break start: %w", symbol, err)
			}
			if s.breakEnd, err = minuteOfDay(spec.BreakEnd); err != nil {
				return nil, fmt.Errorf("session %s break end: %w", symbol, err)
			}
		}
		if len(spec.TradingDays) == 0 {
			for i := 0; i < 5; i++ {
				s.tradingDays[i] = true
			}
		} else {
			for _, d := range spec.TradingDays {
				if d < 0 || d > 6 {
					return nil, fmt.Errorf("session %s: trading day %d out of range", symbol, d)
				}
				s.tradingDays[d] = true
			}
		}
		cal.sessions[symbol] = s
	}

	return cal, nil
}

// dayIndex maps a weekday onto the session mask index, Monday first.
func dayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// IsOpen reports whether a symbol's market is open at the given instant.
// Times are evaluated in UTC. Open after close means the session crosses
// midnight; the pre-midnight leg anchors the trading-day check and the
// post-midnight leg belongs to the previous day's session.
func (c *Calendar) IsOpen(symbol string, at time.Time) bool {
	s, ok := c.sessions[symbol]
	if !ok {
		return true
	}

	utc := at.UTC()
	minute := utc.Hour()*60 + utc.Minute()
	day := dayIndex(utc.Weekday())

	var inSession bool
	if s.open <= s.close {
		inSession = minute >= s.open && minute < s.close && s.tradingDays[day]
	} else {
		switch {
		case minute >= s.open:
			inSession = s.tradingDays[day]
		case minute < s.close:
			inSession = s.tradingDays[(day+6)%7]
		}
	}
	if !inSession {
		return false
	}

	if s.hasBreak && minute >= s.breakStart && minute < s.breakEnd {
		return false
	}
	return true
}

// HasSession reports whether a symbol has a configured session at all.
func (c *Calendar) HasSession(symbol string) bool {
	_, ok := c.sessions[symbol]
	return ok
}
