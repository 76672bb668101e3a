// Command cinescribe watches a playing video and writes a running narrative of it.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/GriffinCanCode/cinescribe/internal/orchestrator/narrative"
)

// Exit codes for different failure modes
const (
	ExitSuccess  = 0
	ExitError    = 1 // configuration or runtime error
	ExitNoReport = 2 // session ran but produced no final report
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, narrative.ErrNothingToReport) {
			os.Exit(ExitNoReport)
		}
		os.Exit(ExitError)
	}
}
