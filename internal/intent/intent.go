// Package intent maps free text from transcripts and assistant replies to
// navigation intents.
package intent

import (
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-concierge/internal/locale"
)

// Intent names a navigation destination, or NoOp.
type Intent string

const (
	NoOp         Intent = "noop"
	Home         Intent = "home"
	Bus          Intent = "bus"
	Calendar     Intent = "calendar"
	TodayWeather Intent = "today_weather"
	WeekWeather  Intent = "week_weather"
)

var destinations = []Intent{Home, Bus, Calendar, TodayWeather, WeekWeather}

// Destinations lists every intent that navigates somewhere.
func Destinations() []Intent {
	return append([]Intent(nil), destinations...)
}

func Parse(value string) (Intent, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == string(NoOp) {
		return NoOp, nil
	}
	for _, d := range destinations {
		if string(d) == value {
			return d, nil
		}
	}
	return NoOp, fmt.Errorf("unknown intent %q", value)
}

// IsDestination reports whether the intent navigates.
func (i Intent) IsDestination() bool {
	for _, d := range destinations {
		if d == i {
			return true
		}
	}
	return false
}

func (i Intent) String() string { return string(i) }

// Interpreter turns text into an intent. Implementations must be safe for
// concurrent use.
type Interpreter interface {
	Interpret(text string, lang locale.Tag) Intent
}
