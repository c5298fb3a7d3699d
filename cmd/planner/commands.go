package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/alem-hub/study-pace/internal/app"
	"github.com/alem-hub/study-pace/internal/application/command"
	"github.com/alem-hub/study-pace/internal/application/query"
	"github.com/alem-hub/study-pace/internal/application/resilience"
	"github.com/alem-hub/study-pace/internal/application/saga"
	"github.com/alem-hub/study-pace/internal/domain/persona"
	"github.com/alem-hub/study-pace/internal/domain/plan"
	"github.com/alem-hub/study-pace/internal/domain/readiness"
	"github.com/alem-hub/study-pace/internal/infrastructure/notify"
	"github.com/alem-hub/study-pace/internal/infrastructure/persistence/postgres"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND TABLE
// ══════════════════════════════════════════════════════════════════════════════

type commandSpec struct {
	name    string
	summary string
	run     func(c *cli, ctx context.Context, fs *pflag.FlagSet, args []string) error
}

var commands = []commandSpec{
	{"today", "rank today's suggestions", (*cli).today},
	{"missed", "list overdue tasks with days missed", (*cli).missed},
	{"capacity", "show limits and today's usage", (*cli).capacity},
	{"plans", "show the selected plan and alternatives", (*cli).plans},
	{"classify", "classify onboarding answers without saving", (*cli).classify},
	{"onboard", "save answers, persona, plan and capacity", (*cli).onboard},
	{"readiness", "estimate readiness from today's readings", (*cli).readiness},
	{"streak", "show the activity streak", (*cli).streak},
	{"drain", "replay queued writes now", (*cli).drain},
	{"queue", "list queued writes", (*cli).queue},
	{"migrate", "show, apply or roll back schema migrations", (*cli).migrate},
}

func lookup(name string) (commandSpec, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return commandSpec{}, false
}

// cli executes commands against a wired engine and prints JSON.
type cli struct {
	engine *app.App
	out    io.Writer

	// migrations is nil when the engine runs without a database.
	migrations migrationRunner
}

func (c *cli) exec(ctx context.Context, cmd commandSpec, args []string) error {
	fs := pflag.NewFlagSet(cmd.name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return cmd.run(c, ctx, fs, args)
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// dispatch delivers notices the way the worker does.
func (c *cli) dispatch(ctx context.Context, userID string, notices []resilience.Notice) {
	notify.Dispatch(ctx, c.engine.Notifier, userID, notices)
}

func userFlag(fs *pflag.FlagSet) *string {
	return fs.StringP("user", "u", "", "student id")
}

func parse(fs *pflag.FlagSet, args []string, user *string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if user != nil && *user == "" {
		return errors.New("--user is required")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) today(ctx context.Context, fs *pflag.FlagSet, args []string) error {
	user := userFlag(fs)
	limit := fs.Int("max", c.engine.Config.Ranking.MaxSuggestions, "maximum number of suggestions")
	if err := parse(fs, args, user); err != nil {
		return err
	}

	res, err := c.engine.SmartToday.Handle(ctx, query.GetSmartTodayQuery{UserID: *user, MaxSuggestions: *limit})
	if err != nil {
		return err
	}
	c.dispatch(ctx, *user, res.Notices)
	return c.print(res)
}

func (c *cli) missed(ctx context.Context, fs *pflag.FlagSet, args []string) error {
	user := userFlag(fs)
	if err := parse(fs, args, user); err != nil {
		return err
	}

	res, err := c.engine.MissedTasks.Handle(ctx, query.GetMissedTasksQuery{UserID: *user})
	if err != nil {
		return err
	}
	return c.print(res)
}

func (c *cli) capacity(ctx context.Context, fs *pflag.FlagSet, args []string) error {
	user := userFlag(fs)
	recalc := fs.Bool("recalculate", false, "derive limits again from the saved profile")
	if err := parse(fs, args, user); err != nil {
		return err
	}

	if *recalc {
		res, err := c.engine.RecalculateCapacity.Handle(ctx, command.RecalculateCapacityCommand{UserID: *user})
		if err != nil {
			return err
		}
		c.dispatch(ctx, *user, res.Notices)
	}

	res, err := c.engine.CapacityStatus.Handle(ctx, query.GetCapacityStatusQuery{UserID: *user})
	if err != nil {
		return err
	}
	return c.print(res)
}

func (c *cli) plans(ctx context.Context, fs *pflag.FlagSet, args []string) error {
	user := userFlag(fs)
	if err := parse(fs, args, user); err != nil {
		return err
	}

	res, err := c.engine.Plans.Handle(ctx, query.GetPlansQuery{UserID: *user})
	if err != nil {
		return err
	}
	return c.print(res)
}

func (c *cli) streak(ctx context.Context, fs *pflag.FlagSet, args []string) error {
	user := userFlag(fs)
	if err := parse(fs, args, user); err != nil {
		return err
	}

	res, err := c.engine.Streak.Handle(ctx, query.GetStreakQuery{UserID: *user})
	if err != nil {
		return err
	}
	return c.print(res)
}

// manualMetrics is a MetricsProvider fed from flags.
type manualMetrics readiness.DayMetrics

func (m manualMetrics) FetchDayMetrics(context.Context) (readiness.DayMetrics, error) {
	return readiness.DayMetrics(m), nil
}

func (c *cli) readiness(ctx context.Context, fs *pflag.FlagSet, args []string) error {
	user := userFlag(fs)
	var m manualMetrics
	fs.Float64Var(&m.SleepHours, "sleep", 0, "hours slept last night")
	fs.Float64Var(&m.HRV, "hrv", 0, "heart rate variability, ms")
	fs.IntVar(&m.Steps, "steps", 0, "steps today")
	fs.IntVar(&m.StandHours, "stand", 0, "stand hours today")
	if err := parse(fs, args, user); err != nil {
		return err
	}

	res, err := c.engine.Readiness(m).Handle(ctx, query.GetReadinessQuery{UserID: *user})
	if err != nil {
		return err
	}
	return c.print(res)
}

// ══════════════════════════════════════════════════════════════════════════════
// ONBOARDING
// ══════════════════════════════════════════════════════════════════════════════

// classifyView is the dry-run output of classify.
type classifyView struct {
	Persona      persona.Persona `json:"persona"`
	Plan         query.PlanDTO   `json:"plan"`
	Alternatives []query.PlanDTO `json:"alternatives"`
}

func answersFlag(fs *pflag.FlagSet) *string {
	return fs.String("answers", "", "onboarding answers as JSON, or @file")
}

func readAnswers(raw string) (persona.Answers, error) {
	var a persona.Answers
	if raw == "" {
		return a, errors.New("--answers is required")
	}
	data := []byte(raw)
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return a, err
		}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return a, fmt.Errorf("decode answers: %w", err)
	}
	return a, a.Validate()
}

func (c *cli) classify(ctx context.Context, fs *pflag.FlagSet, args []string) error {
	raw := answersFlag(fs)
	if err := parse(fs, args, nil); err != nil {
		return err
	}
	answers, err := readAnswers(*raw)
	if err != nil {
		return err
	}

	p := persona.Classify(answers)
	view := classifyView{Persona: p, Plan: query.ToPlanDTO(plan.SelectBest(p))}
	for _, alt := range plan.RecommendAlternatives(p, plan.SignalsFrom(answers)) {
		view.Alternatives = append(view.Alternatives, query.ToPlanDTO(alt))
	}
	return c.print(view)
}

func (c *cli) onboard(ctx context.Context, fs *pflag.FlagSet, args []string) error {
	user := userFlag(fs)
	raw := answersFlag(fs)
	planID := fs.String("plan", "", "explicit plan id instead of the recommended one")
	if err := parse(fs, args, user); err != nil {
		return err
	}
	answers, err := readAnswers(*raw)
	if err != nil {
		return err
	}

	res, err := c.engine.Onboarding.Execute(ctx, saga.OnboardingInput{
		UserID:  *user,
		Answers: answers,
		PlanID:  plan.ID(*planID),
	})
	if err != nil {
		return err
	}
	view := classifyView{Persona: res.Profile.Persona, Plan: query.ToPlanDTO(res.Plan)}
	for _, alt := range res.Alternatives {
		view.Alternatives = append(view.Alternatives, query.ToPlanDTO(alt))
	}
	return c.print(view)
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// drainView is the printable DrainReport.
type drainView struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Retried   int `json:"retried"`
	Dropped   int `json:"dropped"`
	Remaining int `json:"remaining"`
}

func (c *cli) drain(ctx context.Context, fs *pflag.FlagSet, args []string) error {
	if err := parse(fs, args, nil); err != nil {
		return err
	}

	report, err := c.engine.Queue.Drain(ctx)
	if err != nil {
		return err
	}
	return c.print(drainView{
		Attempted: report.Attempted,
		Succeeded: report.Succeeded,
		Retried:   report.Retried,
		Dropped:   len(report.Dropped),
		Remaining: report.Remaining,
	})
}

func (c *cli) queue(ctx context.Context, fs *pflag.FlagSet, args []string) error {
	if err := parse(fs, args, nil); err != nil {
		return err
	}

	items, err := c.engine.Queue.Pending(ctx)
	if err != nil {
		return err
	}
	return c.print(items)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// migrationRunner is the part of postgres.Migrator the CLI drives.
type migrationRunner interface {
	Status(ctx context.Context) ([]postgres.Migration, error)
	Migrate(ctx context.Context) (int, error)
	Rollback(ctx context.Context) error
}

type migrationView struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

func (c *cli) migrate(ctx context.Context, fs *pflag.FlagSet, args []string) error {
	if err := parse(fs, args, nil); err != nil {
		return err
	}
	if c.migrations == nil {
		return errors.New("migrate requires DATABASE_URL")
	}

	action := "status"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}
	switch action {
	case "status":
	case "up":
		if _, err := c.migrations.Migrate(ctx); err != nil {
			return err
		}
	case "rollback":
		if err := c.migrations.Rollback(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown migrate action %q (want status, up or rollback)", action)
	}

	status, err := c.migrations.Status(ctx)
	if err != nil {
		return err
	}
	views := make([]migrationView, 0, len(status))
	for _, m := range status {
		v := migrationView{Version: m.Version, Name: m.Name, Applied: m.IsApplied}
		if m.IsApplied {
			at := m.AppliedAt
			v.AppliedAt = &at
		}
		views = append(views, v)
	}
	return c.print(views)
}
