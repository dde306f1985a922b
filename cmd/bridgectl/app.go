package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/urands/bridge/internal/statusfile"
	"github.com/urands/bridge/pkg/bridge"
	"github.com/urands/bridge/pkg/config"
	"github.com/urands/bridge/pkg/protocol"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	if opts.ShowStatus {
		return printStatus(opts.StatusPath)
	}
	if opts.ConnectURL == "" {
		fatalf("bridgectl: -connect is required unless -show-status is set")
		return 1
	}

	cfg := *config.Default()
	cfg.Mode = "client"
	cfg.InstanceName = "bridgectl"
	cfg.Connect.URL = opts.ConnectURL
	cfg.Connect.Reconnect = false

	core, err := bridge.New(cfg, zap.NewNop(), "")
	if err != nil {
		fatalf("bridgectl: build bridge: %v", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	if err := core.Start(ctx); err != nil {
		fatalf("bridgectl: connect: %v", err)
		return 1
	}
	defer core.Stop()

	switch {
	case opts.TaskDescription != "":
		return runDelegateTask(ctx, core, opts)
	case opts.ContextQuery != "":
		return runRequestContext(ctx, core, opts)
	default:
		fmt.Printf("connected to %s; peers=%d\n", opts.ConnectURL, core.GetPeerCount())
		return 0
	}
}

func runDelegateTask(ctx context.Context, core *bridge.Core, opts Options) int {
	task := &protocol.TaskRequest{
		ID:          "bridgectl-" + core.InstanceName(),
		Description: opts.TaskDescription,
		Scope:       protocol.TaskScope(opts.TaskScope),
		TimeoutMS:   opts.Timeout.Milliseconds(),
	}
	result, err := core.DelegateTask(ctx, task, "")
	if err != nil {
		fatalf("bridgectl: delegate task: %v", err)
		return 1
	}
	return printJSON(result)
}

func runRequestContext(ctx context.Context, core *bridge.Core, opts Options) int {
	chunks, err := core.RequestContext(ctx, opts.ContextQuery, "", opts.Timeout)
	if err != nil {
		fatalf("bridgectl: request context: %v", err)
		return 1
	}
	return printJSON(chunks)
}

func printStatus(path string) int {
	if path == "" {
		fatalf("bridgectl: -status is required with -show-status")
		return 1
	}
	doc, err := statusfile.Read(path)
	if err != nil {
		fatalf("bridgectl: read status: %v", err)
		return 1
	}
	return printJSON(doc)
}

func printJSON(v any) int {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("bridgectl: encode result: %v", err)
		return 1
	}
	fmt.Println(string(b))
	return 0
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
}
