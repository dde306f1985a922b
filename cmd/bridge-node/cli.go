package main

import "flag"

// Options holds CLI options for the node.
type Options struct {
	ConfigPath string
	StatusPath string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("bridge-node", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.StringVar(&opts.StatusPath, "status", "", "Path to the status sidecar file (empty uses <instance_name>.status.json in the working directory)")
	_ = fs.Parse(args)
	return opts
}
