package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ternarybob/siteverify/internal/common"
)

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
