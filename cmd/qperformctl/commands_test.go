package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deadlyrat/qperform-server-dev/discipline"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_WarnThenEvaluate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "qperform.db")

	// GIVEN: An agent with one Verbal QA warning issued Apr 20
	_, err := run(t, "--db", db, "agent", "add", "agent@example.com", "--leader", "lead@example.com")
	require.NoError(t, err)
	out, err := run(t, "--db", db, "warn", "agent@example.com",
		"--kind", "Verbal", "--metric", "QA", "--by", "sup@example.com", "--date", "2025-04-20")
	require.NoError(t, err)
	assert.Contains(t, out, "expires 2025-07-19")

	// WHEN: Evaluating as of May 5
	out, err = run(t, "--db", db, "evaluate", "agent@example.com",
		"--metric", "QA", "--from", "2025-04-07", "--to", "2025-05-04", "--at", "2025-05-05")

	// THEN: Case A is printed with its priority
	require.NoError(t, err)
	assert.Contains(t, out, "[Medium] Case A: "+discipline.ActionSecondVerbal)
	assert.Contains(t, out, "1 verbal, 0 written")

	// WHEN: The same period is evaluated again
	out, err = run(t, "--db", db, "evaluate", "agent@example.com",
		"--metric", "QA", "--from", "2025-04-07", "--to", "2025-05-04", "--at", "2025-05-05")

	// THEN: The stored recommendation is reported
	require.NoError(t, err)
	assert.Contains(t, out, "already evaluated as")
}

func TestCLI_WarningsActiveAt(t *testing.T) {
	db := filepath.Join(t.TempDir(), "qperform.db")

	for _, date := range []string{"2025-01-02", "2025-04-20"} {
		_, err := run(t, "--db", db, "warn", "agent@example.com",
			"--kind", "Verbal", "--metric", "QA", "--by", "sup@example.com", "--date", date)
		require.NoError(t, err)
	}

	out, err := run(t, "--db", db, "warnings", "agent@example.com", "--metric", "QA", "--active", "--at", "2025-05-05")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-04-20")
	assert.NotContains(t, out, "2025-01-02")

	_, err = run(t, "--db", db, "warnings", "agent@example.com", "--active")
	assert.Error(t, err)
}

func TestCLI_LeaderRequiresAssignment(t *testing.T) {
	db := filepath.Join(t.TempDir(), "qperform.db")

	_, err := run(t, "--db", db, "agent", "add", "agent@example.com")
	require.NoError(t, err)

	_, err = run(t, "--db", db, "leader", "agent@example.com",
		"--metric", "QA", "--from", "2025-04-07", "--to", "2025-05-04")
	assert.ErrorIs(t, err, discipline.ErrNoLeader)
}

func TestCLI_RejectsBadInput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "qperform.db")

	_, err := run(t, "--db", db, "evaluate", "agent@example.com",
		"--metric", "Sales", "--from", "2025-04-07", "--to", "2025-05-04")
	assert.ErrorIs(t, err, discipline.ErrInvalidInput)

	_, err = run(t, "--db", db, "evaluate", "agent@example.com",
		"--metric", "QA", "--from", "2025-05-04", "--to", "2025-04-07")
	assert.ErrorIs(t, err, discipline.ErrInvalidInput)

	_, err = run(t, "--db", db, "sweep", "--weeks", "0")
	assert.Error(t, err)
}

func TestCLI_PolicyPrintsTOML(t *testing.T) {
	out, err := run(t, "policy")
	require.NoError(t, err)
	assert.Contains(t, out, "week_threshold = 2")
	assert.Contains(t, out, `counting_mode = "total"`)
}

func TestPriorityColor(t *testing.T) {
	color.NoColor = false
	defer func() { color.NoColor = true }()

	critical := priorityColor(discipline.PriorityCritical).Sprint("x")
	low := priorityColor(discipline.PriorityLow).Sprint("x")
	assert.Contains(t, critical, "\x1b[31")
	assert.Contains(t, low, "\x1b[32")
}
