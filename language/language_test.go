package language

import "testing"

func TestParse(t *testing.T) {
	for _, tt := range []struct {
		input string
		want  Target
	}{
		{"CN", Chinese},
		{"en", English},
		{"ja-JP", Japanese},
		{"japanese", Japanese},
		{" EN ", English},
	} {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
	if _, err := Parse("klingon"); err == nil {
		t.Error("expected error for unknown language")
	}
}

func TestLang(t *testing.T) {
	for _, tt := range []struct {
		target Target
		want   string
	}{
		{Chinese, "zh"},
		{English, "en"},
		{Japanese, "ja"},
		{Target{Locale: "fr"}, "fr"},
	} {
		if got := tt.target.Lang(); got != tt.want {
			t.Errorf("%v.Lang() = %q, want %q", tt.target, got, tt.want)
		}
	}
}

func TestByLocale(t *testing.T) {
	if got, ok := ByLocale("EN-us"); !ok || got != English {
		t.Errorf("ByLocale(EN-us) = %+v, %v", got, ok)
	}
	if _, ok := ByLocale("de-DE"); ok {
		t.Error("unexpected match for de-DE")
	}
}

func TestZero(t *testing.T) {
	if !(Target{}).IsZero() {
		t.Error("zero target should be zero")
	}
	if English.IsZero() {
		t.Error("English should not be zero")
	}
}
