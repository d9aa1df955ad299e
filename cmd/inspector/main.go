// Inspector pretty-prints an exported gateway state snapshot, as produced
// by GET /v1/state, for offline review of pending withdrawals and the
// action log.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/agentvault/vaultgate/internal/model"
)

func main() {
	path := flag.String("state", "state.json", "path to an exported state snapshot")
	flag.Parse()

	raw, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", *path, err)
		os.Exit(1)
	}

	var state model.GatewayState
	if err := json.Unmarshal(raw, &state); err != nil {
		fmt.Fprintf(os.Stderr, "invalid state snapshot: %v\n", err)
		os.Exit(1)
	}

	if state.Workflow == nil {
		fmt.Println("no withdrawal workflow state in snapshot")
	} else {
		fmt.Printf("--- Withdrawal Requests (%d) ---\n", len(state.Workflow.Requests))
		for _, req := range state.Workflow.Requests {
			approver := "-"
			if req.ApprovedBy != nil {
				approver = req.ApprovedBy.Hex()
			}
			fmt.Printf("%s  %-9s  %s %s -> %s  (requested by %s, approved by %s)\n",
				req.ID, req.Status, req.Amount.String(), req.Kind, req.Recipient.Hex(),
				req.RequestedBy.Hex(), approver)
		}

		fmt.Printf("\n--- Action Log (%d entries) ---\n", len(state.Workflow.Log))
		for _, entry := range state.Workflow.Log {
			fmt.Printf("%s  %-24s  %s  %s\n",
				entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Type, entry.Actor.Hex(), entry.Details)
		}
	}

	fmt.Printf("\n--- Trust Cache (%d entries) ---\n", len(state.TrustCache))
	for _, entry := range state.TrustCache {
		verdict := "untrusted"
		if entry.Verdict.IsTrusted {
			verdict = "trusted"
		}
		fmt.Printf("%s  %-9s  expires %s\n",
			entry.Subject.Hex(), verdict, entry.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
}
