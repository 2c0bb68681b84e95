// Package calendar holds the calendar screen's event list and the voice verbs
// that edit it.
package calendar

import (
	"strings"
	"sync"

	"github.com/loqalabs/loqa-concierge/internal/locale"
)

type Verb string

const (
	None   Verb = ""
	Add    Verb = "add"
	Remove Verb = "remove"
	Modify Verb = "modify"
)

// EventSet is an ordered list of event titles. Duplicates are allowed.
type EventSet []string

type verbWords struct {
	add, remove, modify string
}

var verbsByLanguage = map[locale.Tag]verbWords{
	locale.Korean:   {add: "추가", remove: "삭제", modify: "수정"},
	locale.English:  {add: "add", remove: "remove", modify: "modify"},
	locale.Japanese: {add: "追加", remove: "削除", modify: "修正"},
	locale.Chinese:  {add: "添加", remove: "删除", modify: "修改"},
}

// Board is the event list of one calendar screen. It is safe for concurrent use.
type Board struct {
	mu     sync.Mutex
	events EventSet
}

func NewBoard(initial ...string) *Board {
	return &Board{events: append(EventSet(nil), initial...)}
}

// Events returns a copy of the current list.
func (b *Board) Events() EventSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append(EventSet{}, b.events...)
}

// Apply runs the first verb found in command (checked as add, remove, modify)
// against pending, the event text the user is editing:
//
//   - add appends pending
//   - remove deletes the first element equal to pending
//   - modify replaces the first element equal to pending with the rest of
//     the command once the verb is stripped
//
// It reports the verb found and whether the list changed. An empty pending on
// add, an empty modify tail, or a pending that is not in the list change nothing.
func (b *Board) Apply(command, pending string, lang locale.Tag) (Verb, bool) {
	words, ok := verbsByLanguage[lang]
	if !ok {
		words = verbsByLanguage[locale.Default]
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case strings.Contains(command, words.add):
		if strings.TrimSpace(pending) == "" {
			return Add, false
		}
		b.events = append(b.events, pending)
		return Add, true
	case strings.Contains(command, words.remove):
		i := b.indexOf(pending)
		if i < 0 {
			return Remove, false
		}
		b.events = append(b.events[:i], b.events[i+1:]...)
		return Remove, true
	case strings.Contains(command, words.modify):
		tail := strings.TrimSpace(strings.Replace(command, words.modify, "", 1))
		if tail == "" {
			return Modify, false
		}
		i := b.indexOf(pending)
		if i < 0 {
			return Modify, false
		}
		b.events[i] = tail
		return Modify, true
	}
	return None, false
}

func (b *Board) indexOf(text string) int {
	for i, e := range b.events {
		if e == text {
			return i
		}
	}
	return -1
}
