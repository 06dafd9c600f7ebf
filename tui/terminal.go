// Package tui implements the qtrust prompter on a text terminal.
package tui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// ErrCancelled is returned when the user quits or input ends before a
// selection is made.
var ErrCancelled = errors.New("qtrust: selection cancelled")

const defaultWidth = 72

// Terminal asks questions on a line-oriented terminal.
type Terminal struct {
	in    *bufio.Reader
	out   io.Writer
	width int

	header *color.Color
	index  *color.Color
	warn   *color.Color
}

// NewTerminal returns a Terminal reading answers from in and writing to out.
// Color is used only when out is a terminal and NO_COLOR is unset.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{
		in:     bufio.NewReader(in),
		out:    out,
		width:  defaultWidth,
		header: color.New(color.Bold, color.FgWhite),
		index:  color.New(color.FgCyan),
		warn:   color.New(color.FgYellow),
	}
	tty := false
	if f, ok := out.(*os.File); ok {
		fd := int(f.Fd())
		tty = term.IsTerminal(fd)
		if tty {
			if w, _, err := term.GetSize(fd); err == nil && w > 0 && w < defaultWidth {
				t.width = w
			}
		}
	}
	if !tty || os.Getenv("NO_COLOR") != "" {
		t.header.DisableColor()
		t.index.DisableColor()
		t.warn.DisableColor()
	}
	return t
}

// Checklist prints items numbered from 1 and reads a line of numbers
// separated by spaces or commas. It returns the chosen zero-based indices
// in ascending order. An empty line chooses nothing. "q" or end of input
// returns ErrCancelled. Invalid input is reported and asked again.
func (t *Terminal) Checklist(prompt string, items []string) ([]int, error) {
	t.header.Fprintln(t.out, prompt)
	fmt.Fprintln(t.out, strings.Repeat("-", t.width))
	for i, item := range items {
		label := fmt.Sprintf("[%d] ", i+1)
		pad := strings.Repeat(" ", len(label))
		for j, line := range strings.Split(item, "\n") {
			if j == 0 {
				t.index.Fprint(t.out, label)
			} else {
				fmt.Fprint(t.out, pad)
			}
			fmt.Fprintln(t.out, line)
		}
	}
	fmt.Fprintln(t.out, strings.Repeat("-", t.width))

	for {
		fmt.Fprint(t.out, "Trust which? (numbers, empty for none, q to cancel): ")
		line, err := t.in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(t.out)
				return nil, ErrCancelled
			}
			return nil, fmt.Errorf("read selection: %w", err)
		}
		picked, perr := ParseSelection(line, len(items))
		if perr == nil {
			return picked, nil
		}
		if errors.Is(perr, ErrCancelled) {
			return nil, perr
		}
		t.warn.Fprintln(t.out, perr.Error())
		if err != nil {
			// Input ended on an invalid line.
			return nil, ErrCancelled
		}
	}
}

// Notify prints msg highlighted.
func (t *Terminal) Notify(msg string) error {
	_, err := t.warn.Fprintln(t.out, "! "+msg)
	return err
}

// ParseSelection parses a line of 1-based indices into sorted, unique
// zero-based indices below n.
func ParseSelection(line string, n int) ([]int, error) {
	line = strings.TrimSpace(line)
	if strings.EqualFold(line, "q") {
		return nil, ErrCancelled
	}
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	seen := make(map[int]bool, len(fields))
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", f)
		}
		if v < 1 || v > n {
			return nil, fmt.Errorf("%d is not between 1 and %d", v, n)
		}
		if seen[v-1] {
			continue
		}
		seen[v-1] = true
		out = append(out, v-1)
	}
	sort.Ints(out)
	return out, nil
}
