package main

import (
	"errors"
	"log"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/rzip/internal/cmd"
)

func main() {
	p, err := cmd.NewParser()
	if err != nil {
		log.Fatalf("create parser error: %v", err)
	}

	_, err = p.Parse()
	exit(exitCode(err))
}

// exitCode is 0 on success or after printing help, 2 for invalid command lines, and 1 for any other error.
func exitCode(err error) int {
	var fe *flags.Error
	switch {
	case err == nil, flags.WroteHelp(err):
		return 0
	case errors.As(err, &fe):
		return 2
	default:
		return 1
	}
}
