package intent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loqalabs/loqa-concierge/internal/locale"
)

// Trigger binds a keyword to the intent it selects.
type Trigger struct {
	Keyword string `yaml:"keyword"`
	Intent  Intent `yaml:"intent"`
}

// Table holds, per language, the triggers in priority order.
type Table map[locale.Tag][]Trigger

type tableFile struct {
	Languages Table `yaml:"languages"`
}

// DefaultTable returns the built-in keyword table. Priority in every language
// is bus, calendar, today's weather, this week's weather, home.
func DefaultTable() Table {
	return Table{
		locale.Korean: {
			{"버스", Bus},
			{"캘린더", Calendar},
			{"일정", Calendar},
			{"오늘 날씨", TodayWeather},
			{"이번주 날씨", WeekWeather},
			{"이번 주 날씨", WeekWeather},
			{"주간 날씨", WeekWeather},
			{"홈", Home},
		},
		locale.English: {
			{"bus", Bus},
			{"calendar", Calendar},
			{"schedule", Calendar},
			{"today weather", TodayWeather},
			{"today's weather", TodayWeather},
			{"week weather", WeekWeather},
			{"week's weather", WeekWeather},
			{"weekly weather", WeekWeather},
			{"home", Home},
		},
		locale.Japanese: {
			{"バス", Bus},
			{"カレンダー", Calendar},
			{"予定", Calendar},
			{"今日の天気", TodayWeather},
			{"今週の天気", WeekWeather},
			{"週間天気", WeekWeather},
			{"ホーム", Home},
		},
		locale.Chinese: {
			{"公交", Bus},
			{"巴士", Bus},
			{"日历", Calendar},
			{"日程", Calendar},
			{"今天天气", TodayWeather},
			{"今天的天气", TodayWeather},
			{"本周天气", WeekWeather},
			{"这周天气", WeekWeather},
			{"主页", Home},
		},
	}
}

// Override returns a copy of t where every language present in other is
// replaced by other's triggers.
func (t Table) Override(other Table) Table {
	out := make(Table, len(t)+len(other))
	for lang, triggers := range t {
		out[lang] = append([]Trigger(nil), triggers...)
	}
	for lang, triggers := range other {
		out[lang] = append([]Trigger(nil), triggers...)
	}
	return out
}

// LoadTable reads a YAML keyword table:
//
//	languages:
//	  en-US:
//	    - keyword: shuttle
//	      intent: bus
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse keyword table: %w", err)
	}
	if err := ValidateTable(f.Languages); err != nil {
		return nil, err
	}
	return f.Languages, nil
}

// ValidateTable ensures every language is supported and every trigger has a
// keyword and a destination.
func ValidateTable(t Table) error {
	if len(t) == 0 {
		return fmt.Errorf("languages must declare at least one language")
	}
	for lang, triggers := range t {
		if !lang.Valid() {
			return fmt.Errorf("languages.%s: unsupported language", lang)
		}
		if len(triggers) == 0 {
			return fmt.Errorf("languages.%s: at least one trigger is required", lang)
		}
		for i, trig := range triggers {
			if strings.TrimSpace(trig.Keyword) == "" {
				return fmt.Errorf("languages.%s[%d].keyword is required", lang, i)
			}
			if !trig.Intent.IsDestination() {
				return fmt.Errorf("languages.%s[%d].intent %q is not a destination", lang, i, trig.Intent)
			}
		}
	}
	return nil
}

// KeywordMatcher is the substring Interpreter: the first trigger, in table
// order, contained in the text wins. Matching is case-sensitive and not
// tokenized, so a keyword inside an unrelated word still matches.
type KeywordMatcher struct {
	table    Table
	fallback locale.Tag
}

func NewKeywordMatcher(table Table) *KeywordMatcher {
	return &KeywordMatcher{table: table.Override(nil), fallback: locale.Default}
}

func (m *KeywordMatcher) Interpret(text string, lang locale.Tag) Intent {
	triggers, ok := m.table[lang]
	if !ok {
		triggers = m.table[m.fallback]
	}
	for _, trig := range triggers {
		if strings.Contains(text, trig.Keyword) {
			return trig.Intent
		}
	}
	return NoOp
}
