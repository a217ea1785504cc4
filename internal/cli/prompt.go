package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// prompter reads answers line by line from the command's stdin.
type prompter struct {
	cmd *cobra.Command
	r   *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{cmd: cmd, r: bufio.NewReader(cmd.InOrStdin())}
}

// ask returns value when set, otherwise prints label and reads one line.
func (p *prompter) ask(value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(p.cmd.OutOrStdout(), "%s: ", label)
	line, err := p.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s cannot be empty", strings.ToLower(label))
	}
	return line, nil
}
