package main

import (
	"errors"
	"os"

	"github.com/maine/timeline_watch/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if errors.Is(err, config.ErrInvalid) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
