package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// prompter asks questions on out and reads answers from in.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// String asks for a value, returning def on an empty answer.
func (p *prompter) String(label, def string) string {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	input, _ := p.in.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}

// Int asks for a positive integer, returning def on an empty or invalid answer.
func (p *prompter) Int(label string, def int) int {
	input := p.String(label, strconv.Itoa(def))
	if v, err := strconv.Atoi(input); err == nil && v > 0 {
		return v
	}
	return def
}

// Choice asks until the answer is one of options.
func (p *prompter) Choice(label, def string, options []string) string {
	for {
		answer := strings.ToLower(p.String(fmt.Sprintf("%s (%s)", label, strings.Join(options, ", ")), def))
		for _, o := range options {
			if answer == o {
				return answer
			}
		}
		fmt.Fprintf(p.out, "  Invalid choice %q\n", answer)
		// EOF would loop forever.
		if _, err := p.in.Peek(1); err != nil {
			return def
		}
	}
}

// Confirm asks a yes/no question.
func (p *prompter) Confirm(label string, def bool) bool {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(p.out, "%s [%s]: ", label, hint)
	input, _ := p.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}
