package main

import (
	"fmt"
	"os"

	"github.com/lajos93/canvas-tile-api/internal/config"
)

var conf *config.Config

// InitConf loads and validates the config file, exiting when it is unusable.
func InitConf(cfgFile string) {
	c, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := c.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config %s:\n%s\n", cfgFile, err)
		os.Exit(1)
	}
	conf = c
}
