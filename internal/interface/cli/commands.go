package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/application/query"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
	"github.com/deskinspect/thesis-lifecycle/internal/interface/http/handlers"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// Подкоманды thesisctl. Каждая разбирает свои флаги и пишет результат в out.
// ══════════════════════════════════════════════════════════════════════════════

// Operator - актор, от имени которого thesisctl читает линии.
var Operator = thesis.Actor{ID: "thesisctl", Role: thesis.RoleAdmin}

// ErrUsage возвращается при неизвестной подкоманде или неверных флагах.
var ErrUsage = errors.New("usage error")

// Usage - справка по подкомандам.
const Usage = `thesisctl <command> [flags]

Commands:
  events       list scheduling events and their window state
  eligibility  check whether a submission is possible now
  status       show a thesis lineage
  token        issue a bearer token for an actor
  hash-key     print the bcrypt hash for a service key entry
`

// Deps - зависимости подкоманд. Команды, которым зависимость не нужна,
// работают и без неё.
type Deps struct {
	Events           schedule.EventSource
	Policy           eligibility.Policy
	GetThesis        *query.GetThesisHandler
	CheckEligibility *query.CheckEligibilityHandler
	Auth             *handlers.Authenticator
	Clock            timeutil.Clock
}

// NeedsInfra сообщает, нужны ли подкоманде хранилище и события расписания.
func NeedsInfra(command string) bool {
	switch command {
	case "events", "eligibility", "status":
		return true
	default:
		return false
	}
}

// Run выполняет одну подкоманду.
func Run(ctx context.Context, args []string, out io.Writer, deps Deps) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command", ErrUsage)
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}

	name, rest := args[0], args[1:]
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)

	switch name {
	case "events":
		return runEvents(ctx, fs, rest, out, deps)
	case "eligibility":
		return runEligibility(ctx, fs, rest, out, deps)
	case "status":
		return runStatus(ctx, fs, rest, out, deps)
	case "token":
		return runToken(fs, rest, out, deps)
	case "hash-key":
		return runHashKey(fs, rest, out)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, name)
	}
}

func runEvents(ctx context.Context, fs *flag.FlagSet, args []string, out io.Writer, deps Deps) error {
	department := fs.String("department", "", "department code (empty lists every event)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if deps.Events == nil {
		return errors.New("events: no scheduling event source configured")
	}

	events, err := deps.Events.ListEvents(ctx, strings.TrimSpace(*department))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, FormatEvents(events, deps.Policy, deps.Clock.Now()))
	return err
}

func runEligibility(ctx context.Context, fs *flag.FlagSet, args []string, out io.Writer, deps Deps) error {
	department := fs.String("department", "", "department code")
	category := fs.String("category", schedule.CategorySubmission.String(), "submission or resubmission")
	lang := fs.String("lang", "en", "guidance language")
	if err := parse(fs, args); err != nil {
		return err
	}
	if deps.CheckEligibility == nil {
		return errors.New("eligibility: handler not configured")
	}

	view, err := deps.CheckEligibility.Handle(ctx, query.CheckEligibilityQuery{
		Department: *department,
		Category:   *category,
		Language:   *lang,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, FormatEligibility(*view))
	return err
}

func runStatus(ctx context.Context, fs *flag.FlagSet, args []string, out io.Writer, deps Deps) error {
	student := fs.String("student", "", "student id")
	lineage := fs.String("lineage", "", "lineage id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if deps.GetThesis == nil {
		return errors.New("status: handler not configured")
	}

	view, err := deps.GetThesis.Handle(ctx, query.GetThesisQuery{
		LineageID: *lineage,
		StudentID: *student,
		Actor:     Operator,
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			_, werr := fmt.Fprintln(out, mutedStyle.Render("no thesis found"))
			return werr
		}
		return err
	}
	_, err = fmt.Fprintln(out, FormatThesis(*view, deps.Clock.Now()))
	return err
}

func runToken(fs *flag.FlagSet, args []string, out io.Writer, deps Deps) error {
	user := fs.String("user", "", "actor id")
	role := fs.String("role", string(thesis.RoleStudent), "student, supervisor or admin")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := parse(fs, args); err != nil {
		return err
	}
	if deps.Auth == nil {
		return errors.New("token: authentication not configured")
	}

	actor := thesis.Actor{ID: shared.UserID(strings.TrimSpace(*user)), Role: thesis.Role(strings.ToLower(*role))}
	if err := actor.Validate(); err != nil {
		return err
	}
	token, err := deps.Auth.IssueToken(actor, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func runHashKey(fs *flag.FlagSet, args []string, out io.Writer) error {
	name := fs.String("name", "", "caller name, e.g. portal")
	secret := fs.String("secret", "", "plain service key")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *name == "" || *secret == "" {
		return fmt.Errorf("%w: -name and -secret are required", ErrUsage)
	}

	hash, err := handlers.HashServiceKey(*secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "AUTH_SERVICE_KEYS=%s:%s\n", *name, hash)
	return err
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", ErrUsage, fs.Args())
	}
	return nil
}
