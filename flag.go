package main

import (
	"flag"
	"fmt"
	"os"
)

var (
	hf         bool
	configPath string
	logLevel   string
	runBatch   bool
	categoryID int
)

func InitFlag() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&configPath, "c", "./conf/conf.toml", "set config `file`")
	flag.StringVar(&logLevel, "l", "info", "set log level (default: info)")
	flag.BoolVar(&runBatch, "run", false, "render the configured region once and exit instead of serving")
	flag.IntVar(&categoryID, "category", 0, "species category `id` of a -run job (default: all points)")
	flag.Usage = usage
	flag.Parse()

	if hf {
		flag.Usage()
		os.Exit(0)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `canvas-tile-api version: canvas-tile-api/v0.1.0
Usage: canvas-tile-api [-h] [-c filename] [-l logLevel] [-run [-category id]]
`)
	flag.PrintDefaults()
}
