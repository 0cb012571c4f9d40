// Package guidance turns eligibility decisions and error kinds into short,
// localized messages for end users. Catalogs are embedded YAML files, one
// per locale, registered into an x/text message catalog.
package guidance

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

// BaseLocale is the fallback locale and must have every key.
const BaseLocale = "en"

//go:embed locales/*/*.yaml
var embedded embed.FS

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Guide renders localized guidance.
type Guide struct {
	builder *catalog.Builder
	matcher language.Matcher
	tags    []language.Tag
}

var (
	defaultOnce  sync.Once
	defaultGuide *Guide
)

// Default returns the guide built from the embedded catalogs.
func Default() *Guide {
	defaultOnce.Do(func() {
		g, err := Load(embedded)
		if err != nil {
			panic(fmt.Sprintf("guidance: embedded catalogs: %v", err))
		}
		defaultGuide = g
	})
	return defaultGuide
}

// Load reads locales/<tag>/*.yaml from fsys. Every locale must define the
// same keys as BaseLocale.
func Load(fsys fs.FS) (*Guide, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob catalogs: %w", err)
	}
	sort.Strings(paths)

	byLocale := make(map[string]map[string]string)
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		dir := path.Base(path.Dir(p))
		if strings.TrimSpace(file.Locale) != dir {
			return nil, fmt.Errorf("catalog %s: locale %q must match directory %q", p, file.Locale, dir)
		}
		msgs, ok := byLocale[dir]
		if !ok {
			msgs = make(map[string]string)
			byLocale[dir] = msgs
		}
		for k, v := range file.Messages {
			if _, dup := msgs[k]; dup {
				return nil, fmt.Errorf("catalog %s: duplicate key %q", p, k)
			}
			msgs[k] = v
		}
	}

	base, ok := byLocale[BaseLocale]
	if !ok {
		return nil, fmt.Errorf("base locale %q is missing", BaseLocale)
	}

	locales := make([]string, 0, len(byLocale))
	for l := range byLocale {
		locales = append(locales, l)
	}
	sort.Strings(locales)
	// base first so the matcher falls back to it
	sort.SliceStable(locales, func(i, j int) bool { return locales[i] == BaseLocale })

	builder := catalog.NewBuilder(catalog.Fallback(language.Make(BaseLocale)))
	tags := make([]language.Tag, 0, len(locales))
	for _, l := range locales {
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", l, err)
		}
		for key := range base {
			if _, ok := byLocale[l][key]; !ok {
				return nil, fmt.Errorf("locale %q is missing key %q", l, key)
			}
		}
		for key, msg := range byLocale[l] {
			if err := builder.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("register %s/%s: %w", l, key, err)
			}
		}
		tags = append(tags, tag)
	}

	return &Guide{builder: builder, matcher: language.NewMatcher(tags), tags: tags}, nil
}

// Tags returns the supported locales, base locale first.
func (g *Guide) Tags() []language.Tag {
	out := make([]language.Tag, len(g.tags))
	copy(out, g.tags)
	return out
}

// Match picks the best supported locale for an Accept-Language header or a
// bare tag such as "ru".
func (g *Guide) Match(accept string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return g.tags[0]
	}
	_, idx, _ := g.matcher.Match(tags...)
	return g.tags[idx]
}

// Message renders key with args in tag.
func (g *Guide) Message(tag language.Tag, key string, args ...any) string {
	p := message.NewPrinter(tag, message.Catalog(g.builder))
	return p.Sprintf(key, args...)
}

// ForDecision explains an eligibility decision. event may be nil.
func (g *Guide) ForDecision(tag language.Tag, category schedule.Category, d eligibility.Decision, event *schedule.SchedulingEvent) string {
	label := category.String()
	if event != nil {
		label = eventLabel(*event)
	}

	switch d.Reason {
	case eligibility.ReasonNone:
		return g.Message(tag, "decision.allowed", label, timeutil.FormatDateTimeStr(d.Window.To))
	case eligibility.ReasonNoActiveEvent:
		return g.Message(tag, "decision.no_active_event", label)
	case eligibility.ReasonStorageNotReady:
		return g.Message(tag, "decision.storage_not_ready", label)
	case eligibility.ReasonWindowNotOpenYet:
		return g.Message(tag, "decision.window_not_open_yet", label, timeutil.FormatDateTimeStr(d.Window.From))
	case eligibility.ReasonWindowClosed:
		return g.Message(tag, "decision.window_closed", label, timeutil.FormatDateTimeStr(d.Window.To))
	default:
		return g.Message(tag, "error.internal")
	}
}

// ForError maps an error kind to a message. Eligibility denials should use
// ForDecision, which can name the window.
func (g *Guide) ForError(tag language.Tag, err error) string {
	var denied *eligibility.DeniedError
	if errors.As(err, &denied) {
		return g.ForDecision(tag, "", eligibility.Decision{Reason: denied.Reason, Window: denied.Window}, nil)
	}
	return g.Message(tag, "error."+KeyFor(err))
}

// KeyFor returns the stable error key for err, also used as the API error code.
func KeyFor(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, shared.ErrEligibilityDenied):
		return "eligibility_denied"
	case errors.Is(err, shared.ErrStateTransition):
		return "invalid_transition"
	case errors.Is(err, shared.ErrInvariantViolation):
		return "internal"
	case shared.IsNotFound(err):
		return "not_found"
	case shared.IsConflict(err):
		return "conflict"
	case errors.Is(err, shared.ErrForbidden):
		return "forbidden"
	case errors.Is(err, shared.ErrUnauthorized):
		return "unauthorized"
	case shared.IsValidation(err):
		return "invalid_input"
	case shared.IsExternalService(err):
		return "unavailable"
	default:
		return "internal"
	}
}

func eventLabel(e schedule.SchedulingEvent) string {
	if t := strings.TrimSpace(e.Title); t != "" {
		return t
	}
	return e.ID
}
