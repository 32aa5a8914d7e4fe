/*
qperformctl - Operator CLI for the escalation engine

PURPOSE:
  Runs the same workflow as the HTTP server directly against the SQLite
  database. Useful for back-office corrections and for scripting sweeps
  from cron.

COMMANDS:
  agent add      Create or update a directory entry
  warn           Record a warning
  warnings       List an agent's warnings
  evaluate       Evaluate escalation (Cases A/B/C)
  action         Log a corrective action
  leader         Evaluate leadership accountability (Cases D/E)
  sweep          Evaluate every agent's leader
  policy         Print the effective policy as TOML

GLOBAL FLAGS:
  --db       SQLite database path (default: qperform.db)
  --policy   Policy file (.toml or .json); defaults when empty
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
