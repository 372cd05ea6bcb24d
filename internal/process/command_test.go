package process

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single word", "true", []string{"true"}},
		{"arguments", "sleep 10", []string{"sleep", "10"}},
		{"double quotes", `sh -c "exit 1"`, []string{"sh", "-c", "exit 1"}},
		{"single quotes", `sh -c 'echo "hi"'`, []string{"sh", "-c", `echo "hi"`}},
		{"escaped space", `echo hello\ world`, []string{"echo", "hello world"}},
		{"extra whitespace", "  a \t b  ", []string{"a", "b"}},
		{"empty argument", `printf ""`, []string{"printf", ""}},
		{"escaped quote in double quotes", `echo "say \"hi\""`, []string{"echo", `say "hi"`}},
		{"backslash kept in single quotes", `echo 'a\b'`, []string{"echo", `a\b`}},
		{"empty", "", nil},
		{"blank", " \t ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseCommand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseCommandUnclosedQuote(t *testing.T) {
	for _, input := range []string{`echo "unclosed`, `echo 'unclosed`} {
		if _, err := ParseCommand(input); !errors.Is(err, ErrUnclosedQuote) {
			t.Errorf("ParseCommand(%q): expected ErrUnclosedQuote, got %v", input, err)
		}
	}
}

func TestParseCommandTrailingEscape(t *testing.T) {
	_, err := ParseCommand(`echo foo\`)
	if err == nil {
		t.Fatal("expected error for trailing backslash")
	}
	if errors.Is(err, ErrUnclosedQuote) {
		t.Errorf("trailing backslash reported as unclosed quote: %v", err)
	}
}
