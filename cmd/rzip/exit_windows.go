//go:build windows

package main

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"
)

func exit(code int) {
	// rzip started by double-clicking an archive runs in its own console, which closes as soon as the process exits.
	if term.IsTerminal(int(os.Stdin.Fd())) {
		_, _ = fmt.Fprintf(os.Stderr, "rzip exited with code %d, press Enter to close the console\n", code)
		_, _, _ = bufio.NewReader(os.Stdin).ReadRune()
	}

	if code != 0 {
		os.Exit(code)
	}
}
