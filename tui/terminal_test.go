package tui

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		line    string
		want    []int
		wantErr bool
	}{
		{line: "", want: []int{}},
		{line: "  \n", want: []int{}},
		{line: "1", want: []int{0}},
		{line: "3,1 2\n", want: []int{0, 1, 2}},
		{line: "2, 2", want: []int{1}},
		{line: "0", wantErr: true},
		{line: "4", wantErr: true},
		{line: "x", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseSelection(tc.line, 3)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseSelection(%q) = %v, want error", tc.line, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSelection(%q): %v", tc.line, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ParseSelection(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
	if _, err := ParseSelection("Q\n", 3); !errors.Is(err, ErrCancelled) {
		t.Fatalf("q = %v, want ErrCancelled", err)
	}
}

func TestChecklist(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("9\n2\n"), &out)
	got, err := term.Checklist("Pick", []string{"🏛 CN=A\n01\n", "🏛 CN=B\n02\n"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("Checklist = %v, want [1]", got)
	}
	text := out.String()
	for _, want := range []string{"Pick\n", "[1] 🏛 CN=A\n    01\n", "[2] 🏛 CN=B\n", "9 is not between 1 and 2"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "\x1b[") {
		t.Fatal("color codes written to a non-terminal")
	}
}

func TestChecklistEndOfInput(t *testing.T) {
	var out bytes.Buffer
	for _, in := range []string{"", "q\n", "abc"} {
		term := NewTerminal(strings.NewReader(in), &out)
		if _, err := term.Checklist("Pick", []string{"a"}); !errors.Is(err, ErrCancelled) {
			t.Fatalf("input %q: err = %v, want ErrCancelled", in, err)
		}
	}

	term := NewTerminal(strings.NewReader("1"), &out)
	got, err := term.Checklist("Pick", []string{"a"})
	if err != nil || !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("unterminated line = %v, %v", got, err)
	}
}

func TestNotify(t *testing.T) {
	var out bytes.Buffer
	if err := NewTerminal(strings.NewReader(""), &out).Notify("failed to save: CN=A"); err != nil {
		t.Fatal(err)
	}
	if out.String() != "! failed to save: CN=A\n" {
		t.Fatalf("Notify wrote %q", out.String())
	}
}
