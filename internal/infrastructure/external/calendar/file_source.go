package calendar

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/metrics"
)

// FileSource reads scheduling events from a YAML file, or from every
// *.yaml / *.yml file in a directory. The files are re-read on every call so
// edits take effect without a restart.
//
//	events:
//	  - id: cs-2026-spring
//	    category: submission
//	    department: cs
//	    due_date: 2026-06-30
//	    readiness: true
type FileSource struct {
	path    string
	metrics *metrics.Metrics
}

var _ schedule.EventSource = (*FileSource)(nil)

// NewFileSource creates a FileSource for path. m may be nil.
func NewFileSource(path string, m *metrics.Metrics) *FileSource {
	return &FileSource{path: path, metrics: m}
}

type eventsFile struct {
	Events []eventDTO `yaml:"events"`
}

// ListEvents implements schedule.EventSource.
func (s *FileSource) ListEvents(ctx context.Context, department string) ([]schedule.SchedulingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	events, err := s.load()
	s.metrics.RecordCalendarFetch("file", err)
	if err != nil {
		return nil, shared.WrapError("schedule", "List", shared.ErrServiceUnavailable, "event file unreadable", err)
	}
	return schedule.ForDepartment(events, department), nil
}

func (s *FileSource) load() ([]schedule.SchedulingEvent, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	var events []schedule.SchedulingEvent
	seen := make(map[string]string)
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var doc eventsFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for i, dto := range doc.Events {
			event, err := dto.toDomain()
			if err != nil {
				return nil, fmt.Errorf("%s: event %d: %w", path, i, err)
			}
			if prev, ok := seen[event.ID]; ok {
				return nil, fmt.Errorf("%s: duplicate event id %q (first in %s)", path, event.ID, prev)
			}
			seen[event.ID] = path
			events = append(events, event)
		}
	}
	return events, nil
}

func (s *FileSource) files() ([]string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{s.path}, nil
	}

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		files = append(files, filepath.Join(s.path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
