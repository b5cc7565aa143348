package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// prompter reads answers line by line from in and writes questions to out.
type prompter struct {
	r   *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{r: bufio.NewReader(in), out: out}
}

// readValue prompts for input with an optional default
func (p *prompter) readValue(prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Fprintf(p.out, "%s: ", prompt)
	}
	input, err := p.r.ReadString('\n')
	input = strings.TrimSpace(input)
	if err != nil && input == "" {
		fmt.Fprintln(p.out)
		return defaultValue
	}
	if input == "" {
		return defaultValue
	}
	return input
}

func (p *prompter) readInt(prompt string, defaultValue int) int {
	for {
		v := p.readValue(prompt, strconv.Itoa(defaultValue))
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
		fmt.Fprintf(p.out, "not a number: %q\n", v)
	}
}

func (p *prompter) readBool(prompt string, defaultValue bool) bool {
	def := "n"
	if defaultValue {
		def = "y"
	}
	return isYes(p.readValue(prompt+" (y/n)", def))
}

// Confirm implements deploy.ConfirmFunc. Anything but y/yes declines,
// including end of input.
func (p *prompter) Confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	input, err := p.r.ReadString('\n')
	if err != nil && strings.TrimSpace(input) == "" {
		fmt.Fprintln(p.out)
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	return isYes(input), nil
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
