// Package main validates a policy rule file without starting the server.
// Exit code 0 means the file would load; anything else prints the
// configuration error the server would refuse to start with.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"custos/internal/policy"
)

func main() {
	path := flag.String("file", "policy.yaml", "Path to the policy rule file")
	verbose := flag.Bool("v", false, "Print rules in evaluation order")
	flag.Parse()

	snap, err := policy.NewFileLoader(*path).Load(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "policy-lint:", err)
		os.Exit(1)
	}

	fmt.Printf("ok: version %s, %d rules\n", snap.Version, len(snap.Rules()))
	if *verbose {
		for _, r := range snap.Rules() {
			guard := "unconditional"
			if r.Guard != nil {
				guard = r.Guard.Describe()
			}
			fmt.Printf("  %-30s %s %s/%s/%s  %s\n", r.ID, r.Effect, r.Role, r.ObjectType, r.Action, guard)
		}
	}
}
