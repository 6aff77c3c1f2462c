package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/JPCompany544/arbix-sub001/pkg/app"
	"github.com/JPCompany544/arbix-sub001/pkg/app/custody"
	"github.com/JPCompany544/arbix-sub001/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var runner app.Runner = custody.NewServer(cfg)
	if err := runner.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Custody engine exited: %v\n", err)
		os.Exit(1)
	}
}
