package tokenizer

import (
	"reflect"
	"testing"
)

// TestFold verifies diacritic stripping and lower-casing across accented
// Portuguese input.
func TestFold(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain ascii", "crib", "crib"},
		{"uppercase", "BERÇO", "berco"},
		{"cedilla", "berço", "berco"},
		{"mixed accents", "Decoração Infantil", "decoracao infantil"},
		{"tilde", "Tigrão", "tigrao"},
		{"acute", "Bebê Conforto", "bebe conforto"},
		{"empty", "", ""},
		{"digits untouched", "Kit 3 Peças", "kit 3 pecas"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fold(tt.in); got != tt.want {
				t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestFoldEquivalence verifies that accented and unaccented spellings of the
// same word land in the same folded space.
func TestFoldEquivalence(t *testing.T) {
	pairs := [][2]string{
		{"Berço", "berco"},
		{"berço", "BERCO"},
		{"lençol", "LENÇOL"},
	}
	for _, p := range pairs {
		if Fold(p[0]) != Fold(p[1]) {
			t.Errorf("Fold(%q) = %q, Fold(%q) = %q, want equal", p[0], Fold(p[0]), p[1], Fold(p[1]))
		}
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"spaces", "berço montessoriano", []string{"berco", "montessoriano"}},
		{"punctuation", "kit-berço, 4 peças!", []string{"kit", "berco", "4", "pecas"}},
		{"single rune tokens kept", "berço p m g", []string{"berco", "p", "m", "g"}},
		{"empty", "", nil},
		{"only separators", " -- , ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTerms(t *testing.T) {
	got := Terms("  Kit Berço  ")
	want := []string{"kit", "berco"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Terms = %v, want %v", got, want)
	}
	if Terms("   ") != nil {
		t.Errorf("Terms on whitespace should be nil, got %v", Terms("   "))
	}
}

// TestFoldConcurrent exercises Fold from multiple goroutines; the transform
// chain must not share state across calls.
func TestFoldConcurrent(t *testing.T) {
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 200; j++ {
				if got := Fold("Decoração"); got != "decoracao" {
					t.Errorf("Fold(Decoração) = %q", got)
					return
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
