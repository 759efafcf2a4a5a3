package main

import (
	"fmt"
	"os"

	"github.com/tradepost/tradepost/internal/tools/loadcheck"
)

func main() {
	if err := loadcheck.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
