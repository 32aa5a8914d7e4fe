package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deadlyrat/qperform-server-dev/discipline"
	"github.com/deadlyrat/qperform-server-dev/factory"
	"github.com/deadlyrat/qperform-server-dev/store/sqlite"
	"github.com/deadlyrat/qperform-server-dev/workflow"
)

// app is opened before each command that touches the database.
type app struct {
	dbPath     string
	policyPath string

	policy  discipline.Policy
	store   *sqlite.Store
	service *workflow.Service
}

func (a *app) loadPolicy() error {
	if a.policyPath == "" {
		a.policy = factory.DefaultPolicy()
		return nil
	}
	p, err := factory.LoadPolicyFile(a.policyPath)
	if err != nil {
		return err
	}
	a.policy = p
	return nil
}

func (a *app) open() error {
	if err := a.loadPolicy(); err != nil {
		return err
	}
	store, err := sqlite.New(a.dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.store = store
	a.service = workflow.New(store, a.policy)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "qperformctl",
		Short: "Escalation engine operator CLI",
		Long: `qperformctl evaluates disciplinary escalation and leadership
accountability against the QPerform SQLite database.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "qperform.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&a.policyPath, "policy", "", "Policy file (.toml or .json)")

	rootCmd.AddCommand(agentCmd(a))
	rootCmd.AddCommand(warnCmd(a))
	rootCmd.AddCommand(warningsCmd(a))
	rootCmd.AddCommand(evaluateCmd(a))
	rootCmd.AddCommand(actionCmd(a))
	rootCmd.AddCommand(leaderCmd(a))
	rootCmd.AddCommand(sweepCmd(a))
	rootCmd.AddCommand(policyCmd(a))
	return rootCmd
}

// withService opens the database around run.
func withService(a *app, run func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.open(); err != nil {
			return err
		}
		defer a.close()
		return run(cmd.Context(), cmd, args)
	}
}

// =============================================================================
// AGENTS
// =============================================================================

func agentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage the agent directory",
	}

	var name, leader, client string
	addCmd := &cobra.Command{
		Use:   "add [agent-id]",
		Short: "Create or update an agent",
		Args:  cobra.ExactArgs(1),
		RunE: withService(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			agent, err := a.service.SaveAgent(ctx, discipline.Agent{
				ID:       discipline.AgentID(args[0]),
				Name:     name,
				LeaderID: discipline.LeaderID(leader),
				Client:   client,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Agent %s (leader: %s)\n", okMark(), agent.ID, orNone(string(agent.LeaderID)))
			return nil
		}),
	}
	addCmd.Flags().StringVar(&name, "name", "", "Display name")
	addCmd.Flags().StringVar(&leader, "leader", "", "Assigned team leader")
	addCmd.Flags().StringVar(&client, "client", "", "Client account")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: withService(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			agents, err := a.service.ListAgents(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ag := range agents {
				fmt.Fprintf(out, "%-32s leader=%s\n", ag.ID, orNone(string(ag.LeaderID)))
			}
			return nil
		}),
	}

	cmd.AddCommand(addCmd, listCmd)
	return cmd
}

// =============================================================================
// WARNINGS
// =============================================================================

func warnCmd(a *app) *cobra.Command {
	var kind, metric, by, date, notes string

	cmd := &cobra.Command{
		Use:   "warn [agent-id]",
		Short: "Record a warning",
		Args:  cobra.ExactArgs(1),
		RunE: withService(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			issuedAt, err := optionalDate(date)
			if err != nil {
				return err
			}
			w, err := a.service.RecordWarning(ctx, discipline.WarningRequest{
				AgentID:  discipline.AgentID(args[0]),
				Kind:     discipline.WarningKind(kind),
				Metric:   discipline.MetricType(metric),
				IssuedBy: by,
				IssuedAt: issuedAt,
				Notes:    notes,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s warning %s issued %s, expires %s\n",
				okMark(), w.Metric, w.Kind, w.ID, w.IssuedAt, expiryLabel(w.ExpiresAt))
			return nil
		}),
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Coaching, Verbal or Written")
	cmd.Flags().StringVar(&metric, "metric", "", "Production or QA")
	cmd.Flags().StringVar(&by, "by", "", "Issuing supervisor")
	cmd.Flags().StringVar(&date, "date", "", "Issue date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-text notes")
	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("metric")
	cmd.MarkFlagRequired("by")
	return cmd
}

func warningsCmd(a *app) *cobra.Command {
	var metric, at string
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "warnings [agent-id]",
		Short: "List an agent's warnings",
		Args:  cobra.ExactArgs(1),
		RunE: withService(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			agentID := discipline.AgentID(args[0])
			date, err := optionalDate(at)
			if err != nil {
				return err
			}
			if date.IsZero() {
				date = a.service.Today()
			}

			var ws []discipline.Warning
			if activeOnly {
				if metric == "" {
					return fmt.Errorf("--metric is required with --active")
				}
				ws, err = a.service.ActiveWarnings(ctx, agentID, discipline.MetricType(metric), date)
			} else {
				ws, err = a.service.ListWarnings(ctx, agentID)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, w := range ws {
				if metric != "" && string(w.Metric) != metric {
					continue
				}
				status := inactiveLabel("inactive")
				if w.IsActive(date) {
					status = activeLabel("active")
				}
				fmt.Fprintf(out, "%s  %-10s %-8s %-8s expires %-10s %s\n",
					w.IssuedAt, w.Metric, w.Kind, status, expiryLabel(w.ExpiresAt), w.IssuedBy)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&metric, "metric", "", "Production or QA")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only warnings counting toward escalation")
	cmd.Flags().StringVar(&at, "at", "", "Evaluation date YYYY-MM-DD (default today)")
	return cmd
}

// =============================================================================
// EVALUATE AND ACTIONS
// =============================================================================

func evaluateCmd(a *app) *cobra.Command {
	var metric, from, to, at string

	cmd := &cobra.Command{
		Use:   "evaluate [agent-id]",
		Short: "Evaluate the escalation ladder for one period",
		Args:  cobra.ExactArgs(1),
		RunE: withService(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			weeks, err := dateRange(from, to)
			if err != nil {
				return err
			}
			date, err := optionalDate(at)
			if err != nil {
				return err
			}
			res, err := a.service.Evaluate(ctx, discipline.EvaluationRequest{
				AgentID: discipline.AgentID(args[0]),
				Metric:  discipline.MetricType(metric),
				Weeks:   weeks,
				At:      date,
			})
			if err != nil {
				return err
			}
			printRecommendation(cmd.OutOrStdout(), *res.Recommendation, res.Duplicate)
			return nil
		}),
	}
	cmd.Flags().StringVar(&metric, "metric", "", "Production or QA")
	cmd.Flags().StringVar(&from, "from", "", "Period start YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Period end YYYY-MM-DD")
	cmd.Flags().StringVar(&at, "at", "", "Evaluation date YYYY-MM-DD (default today)")
	cmd.MarkFlagRequired("metric")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func actionCmd(a *app) *cobra.Command {
	var author, note, date string

	cmd := &cobra.Command{
		Use:   "action [agent-id]",
		Short: "Log a corrective action taken by a leader",
		Args:  cobra.ExactArgs(1),
		RunE: withService(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			loggedAt, err := optionalDate(date)
			if err != nil {
				return err
			}
			entry, err := a.service.LogAction(ctx, workflow.ActionRequest{
				AgentID:  discipline.AgentID(args[0]),
				Author:   author,
				LoggedAt: loggedAt,
				Note:     note,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Logged action %s on %s\n", okMark(), entry.ID, entry.LoggedAt)
			return nil
		}),
	}
	cmd.Flags().StringVar(&author, "author", "", "Leader logging the action")
	cmd.Flags().StringVar(&note, "note", "", "What was done")
	cmd.Flags().StringVar(&date, "date", "", "Date YYYY-MM-DD (default today)")
	cmd.MarkFlagRequired("author")
	cmd.MarkFlagRequired("note")
	return cmd
}

// =============================================================================
// LEADERSHIP
// =============================================================================

func leaderCmd(a *app) *cobra.Command {
	var leader, metric, from, to string

	cmd := &cobra.Command{
		Use:   "leader [agent-id]",
		Short: "Check whether the agent's leader failed to act",
		Args:  cobra.ExactArgs(1),
		RunE: withService(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			window, err := dateRange(from, to)
			if err != nil {
				return err
			}
			res, err := a.service.EvaluateLeader(ctx, workflow.LeaderRequest{
				LeaderID: discipline.LeaderID(leader),
				AgentID:  discipline.AgentID(args[0]),
				Metric:   discipline.MetricType(metric),
				Window:   window,
			})
			if err != nil {
				return err
			}
			printLeaderResult(cmd.OutOrStdout(), *res)
			return nil
		}),
	}
	cmd.Flags().StringVar(&leader, "leader", "", "Leader (default: agent's assigned leader)")
	cmd.Flags().StringVar(&metric, "metric", "", "Production or QA")
	cmd.Flags().StringVar(&from, "from", "", "Window start YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Window end YYYY-MM-DD")
	cmd.MarkFlagRequired("metric")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func sweepCmd(a *app) *cobra.Command {
	var weeks int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate every agent's leader over the trailing weeks",
		RunE: withService(a, func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if weeks < 1 {
				return fmt.Errorf("--weeks must be at least 1")
			}
			today := a.service.Today()
			window := discipline.WeekRange{Start: today.AddDays(-7*weeks + 1), End: today}

			res, err := a.service.SweepLeaders(ctx, window, today)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range res.Reported {
				printLeaderResult(out, r)
			}
			for _, e := range res.Errors {
				fmt.Fprintf(out, "%s %v\n", failMark(), e)
			}
			fmt.Fprintf(out, "Swept %s: %d evaluated, %d reported, %d failed\n",
				window, res.Evaluated, len(res.Reported), len(res.Errors))
			return nil
		}),
	}
	cmd.Flags().IntVar(&weeks, "weeks", 4, "Trailing weeks to evaluate")
	return cmd
}

// =============================================================================
// POLICY
// =============================================================================

func policyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the effective policy as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadPolicy(); err != nil {
				return err
			}
			return factory.WritePolicyTOML(cmd.OutOrStdout(), a.policy)
		},
	}
}
