// Command toolagent runs one prompt through an agent whose tools come from
// MCP tool servers.
//
//	toolagent --config agent.yaml --llm llm.yaml --prompt "What is 2+2?"
//	echo "What time is it?" | toolagent --config agent.toml --llm llm.yaml --verbose
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "toolagent:", err)
		os.Exit(1)
	}
}
