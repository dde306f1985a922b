package main

import (
	"flag"
	"time"
)

// Options holds CLI options for bridgectl.
type Options struct {
	StatusPath string
	ConnectURL string
	Timeout    time.Duration

	ShowStatus bool

	TaskDescription string
	TaskScope       string

	ContextQuery string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("bridgectl", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.StatusPath, "status", "", "path to a bridge-node status sidecar file to print")
	fs.StringVar(&opts.ConnectURL, "connect", "", "bridge ws:// URL to dial as a throwaway peer")
	fs.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "dial and request timeout")
	fs.BoolVar(&opts.ShowStatus, "show-status", false, "print the status file and exit")
	fs.StringVar(&opts.TaskDescription, "task", "", "delegate a task with this description to the connected peer")
	fs.StringVar(&opts.TaskScope, "scope", "execute", "task scope: execute|analyze|suggest")
	fs.StringVar(&opts.ContextQuery, "query", "", "request context matching this query from the connected peer")
	_ = fs.Parse(args)
	return opts
}
