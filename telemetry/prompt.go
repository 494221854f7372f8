package telemetry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

// ErrOverwriteDeclined is returned when existing output must not be replaced.
var ErrOverwriteDeclined = errors.New("output exists and overwrite was declined")

// Prompter asks yes/no questions on a terminal.
type Prompter struct {
	In          io.Reader
	Out         io.Writer
	Interactive bool
}

// StdPrompter prompts on stdin/stderr when stdin is a terminal.
func StdPrompter() Prompter {
	return Prompter{
		In:          os.Stdin,
		Out:         os.Stderr,
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// Confirm asks question and reports whether the answer was yes.
// Non-interactive prompters always answer no.
func (p Prompter) Confirm(question string) (bool, error) {
	if !p.Interactive {
		return false, nil
	}
	fmt.Fprintf(p.Out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// ExistingOutputs returns which of the named files already exist in dir.
func ExistingOutputs(dir string, names ...string) []string {
	var found []string
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			found = append(found, name)
		}
	}
	return found
}

// ConfirmOverwrite guards a run against clobbering previous output. It returns
// nil when nothing would be replaced, when force is set, or when the user agrees.
func ConfirmOverwrite(dir string, names []string, force bool, p Prompter) error {
	if dir == "" || force {
		return nil
	}
	existing := ExistingOutputs(dir, names...)
	if len(existing) == 0 {
		return nil
	}

	ok, err := p.Confirm(fmt.Sprintf("%s already contains %s. Overwrite?", dir, strings.Join(existing, ", ")))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s (use --force)", ErrOverwriteDeclined, dir)
	}
	return nil
}
