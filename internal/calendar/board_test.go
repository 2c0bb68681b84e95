package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loqalabs/loqa-concierge/internal/locale"
)

func TestModifyReplacesWithTail(t *testing.T) {
	b := NewBoard("meeting")
	verb, changed := b.Apply("수정 lunch", "meeting", locale.Korean)
	assert.Equal(t, Modify, verb)
	assert.True(t, changed)
	assert.Equal(t, EventSet{"lunch"}, b.Events())
}

func TestAddThenRemoveRoundTrip(t *testing.T) {
	b := NewBoard()
	_, changed := b.Apply("추가", "X", locale.Korean)
	assert.True(t, changed)
	assert.Equal(t, EventSet{"X"}, b.Events())

	verb, changed := b.Apply("삭제", "X", locale.Korean)
	assert.Equal(t, Remove, verb)
	assert.True(t, changed)
	assert.Empty(t, b.Events())
}

func TestDuplicatesAffectOnlyFirstMatch(t *testing.T) {
	b := NewBoard("gym", "dentist", "gym")
	b.Apply("remove it", "gym", locale.English)
	assert.Equal(t, EventSet{"dentist", "gym"}, b.Events())

	b = NewBoard("gym", "gym")
	b.Apply("modify yoga", "gym", locale.English)
	assert.Equal(t, EventSet{"yoga", "gym"}, b.Events())
}

func TestVerbPriority(t *testing.T) {
	b := NewBoard("a")
	verb, _ := b.Apply("add or remove", "a", locale.English)
	assert.Equal(t, Add, verb)
	assert.Equal(t, EventSet{"a", "a"}, b.Events())
}

func TestNoChange(t *testing.T) {
	b := NewBoard("meeting")
	cases := []struct {
		command, pending string
		verb             Verb
	}{
		{"hello", "meeting", None},
		{"add", "  ", Add},
		{"remove", "missing", Remove},
		{"modify", "meeting", Modify},
		{"modify lunch", "missing", Modify},
	}
	for _, tc := range cases {
		verb, changed := b.Apply(tc.command, tc.pending, locale.English)
		assert.Equal(t, tc.verb, verb, tc.command)
		assert.False(t, changed, tc.command)
	}
	assert.Equal(t, EventSet{"meeting"}, b.Events())
}

func TestVerbsFollowLanguage(t *testing.T) {
	b := NewBoard()
	verb, _ := b.Apply("add", "x", locale.Korean)
	assert.Equal(t, None, verb)
	verb, changed := b.Apply("予定を追加", "x", locale.Japanese)
	assert.Equal(t, Add, verb)
	assert.True(t, changed)
}

func TestEventsReturnsCopy(t *testing.T) {
	b := NewBoard("a")
	events := b.Events()
	events[0] = "b"
	assert.Equal(t, EventSet{"a"}, b.Events())
}
