package locale

import "testing"

func TestParse(t *testing.T) {
	cases := map[string]Tag{
		"ko-KR": Korean,
		"en-us": English,
		"ja":    Japanese,
		" zh ":  Chinese,
	}
	for input, want := range cases {
		got, err := Parse(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", input, want, got)
		}
	}
}

func TestParseUnsupported(t *testing.T) {
	if _, err := Parse("fr-FR"); err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestValid(t *testing.T) {
	if !Default.Valid() {
		t.Fatal("default language must be valid")
	}
	if Tag("xx").Valid() {
		t.Fatal("unexpected valid tag")
	}
	if Korean.Base() != "ko" {
		t.Fatalf("unexpected base %q", Korean.Base())
	}
}
