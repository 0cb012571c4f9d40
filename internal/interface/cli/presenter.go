// Package cli форматирует данные для вывода в терминал утилитой thesisctl.
// Презентеры превращают read-модели приложения в текст со стилями lipgloss.
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/deskinspect/thesis-lifecycle/internal/application/query"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	deniedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// ══════════════════════════════════════════════════════════════════════════════
// THESIS STATUS PRESENTER
// Карточка линии: статус, шаг прогресса, версии и история.
// ══════════════════════════════════════════════════════════════════════════════

// FormatThesis форматирует полную карточку линии (команда status).
func FormatThesis(view query.ThesisView, now time.Time) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Thesis " + view.LineageID))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Student:    %s\n", view.StudentID))
	if view.SupervisorID != "" {
		sb.WriteString(fmt.Sprintf("Supervisor: %s\n", view.SupervisorID))
	}
	if view.Department != "" {
		sb.WriteString(fmt.Sprintf("Department: %s\n", view.Department))
	}
	sb.WriteString(fmt.Sprintf("Status:     %s\n", statusStyle(view.Status).Render(view.Status)))
	sb.WriteString(fmt.Sprintf("Progress:   %s %d/%d\n", formatProgressBar(view.ProgressStep, view.ProgressSteps), view.ProgressStep, view.ProgressSteps))

	if view.ResubmissionReason != "" {
		sb.WriteString(fmt.Sprintf("Requested:  %s\n", view.ResubmissionReason))
	}
	if len(view.AllowedOperations) > 0 {
		sb.WriteString(mutedStyle.Render("Next: " + strings.Join(view.AllowedOperations, ", ")))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(formatVersions(view.Versions, now))
	sb.WriteString("\n")
	sb.WriteString(formatHistory(view.History, now))

	return cardStyle.Render(strings.TrimRight(sb.String(), "\n"))
}

// formatVersions форматирует журнал версий.
func formatVersions(versions []query.VersionView, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Versions"))
	sb.WriteString("\n")
	if len(versions) == 0 {
		sb.WriteString(mutedStyle.Render("  none yet"))
		sb.WriteString("\n")
		return sb.String()
	}
	for _, v := range versions {
		kind := "submission"
		if v.IsResubmission {
			kind = "revision"
		}
		sb.WriteString(fmt.Sprintf("  v%-3d %-10s %s  %s\n",
			v.Number, kind, v.FileRef,
			mutedStyle.Render(timeutil.FormatRelative(now, v.CreatedAt))))
	}
	return sb.String()
}

// formatHistory форматирует историю переходов.
func formatHistory(history []query.HistoryView, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("History"))
	sb.WriteString("\n")
	for _, h := range history {
		line := fmt.Sprintf("  %s  %-22s", timeutil.FormatDateTimeStr(h.Timestamp), h.Status)
		if h.ActorID != "" {
			line += " by " + h.ActorID
		}
		if h.Comments != "" {
			line += mutedStyle.Render(" (" + h.Comments + ")")
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatProgressBar форматирует прогресс-бар по шагам.
func formatProgressBar(step, total int) string {
	if total <= 0 {
		return "[]"
	}
	if step < 0 {
		step = 0
	}
	if step > total {
		step = total
	}
	return "[" + strings.Repeat("█", step) + strings.Repeat("░", total-step) + "]"
}

func statusStyle(status string) lipgloss.Style {
	switch thesis.Status(status) {
	case thesis.StatusApproved:
		return okStyle
	case thesis.StatusRejected:
		return deniedStyle
	case thesis.StatusUnderReview, thesis.StatusResubmissionRequested:
		return pendingStyle
	default:
		return mutedStyle
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ELIGIBILITY PRESENTER
// ══════════════════════════════════════════════════════════════════════════════

// FormatEligibility форматирует ответ проверки допуска (команда eligibility).
func FormatEligibility(view query.EligibilityView) string {
	var sb strings.Builder

	verdict := okStyle.Render("ALLOWED")
	if !view.Allowed {
		verdict = deniedStyle.Render("DENIED") + " " + mutedStyle.Render(view.Reason)
	}
	sb.WriteString(fmt.Sprintf("%s  %s\n", titleStyle.Render(view.Category), verdict))

	if view.EventID != "" {
		label := view.EventID
		if view.EventTitle != "" {
			label = view.EventTitle + " (" + view.EventID + ")"
		}
		sb.WriteString(fmt.Sprintf("Event:  %s\n", label))
	}
	if view.WindowStart != nil && view.WindowEnd != nil {
		sb.WriteString(fmt.Sprintf("Window: %s → %s (%d days)\n",
			timeutil.FormatDateTimeStr(*view.WindowStart),
			timeutil.FormatDateTimeStr(*view.WindowEnd),
			view.WindowDays))
	}
	if view.Guidance != "" {
		sb.WriteString("\n")
		sb.WriteString(view.Guidance)
	}

	return cardStyle.Render(strings.TrimRight(sb.String(), "\n"))
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS PRESENTER
// ══════════════════════════════════════════════════════════════════════════════

// FormatEvents форматирует список событий расписания с состоянием окна
// на момент now (команда events).
func FormatEvents(events []schedule.SchedulingEvent, policy eligibility.Policy, now time.Time) string {
	if len(events) == 0 {
		return mutedStyle.Render("no scheduling events")
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%-20s %-14s %-10s %-17s %s", "ID", "CATEGORY", "DEPT", "DUE", "WINDOW")))
	sb.WriteString("\n")

	for _, e := range events {
		dept := e.Department
		if dept == "" {
			dept = "*"
		}
		sb.WriteString(fmt.Sprintf("%-20s %-14s %-10s %-17s %s\n",
			e.ID, e.Category, dept, timeutil.FormatDateTimeStr(e.DueDate), windowState(e, policy, now)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// windowState описывает окно подачи события относительно now.
func windowState(e schedule.SchedulingEvent, policy eligibility.Policy, now time.Time) string {
	d := eligibility.IsEligible(now, e.DueDate, e.Readiness, policy.WindowFor(e))
	switch d.Reason {
	case eligibility.ReasonNone:
		return okStyle.Render("open") + mutedStyle.Render(", closes "+timeutil.FormatRelative(now, e.DueDate))
	case eligibility.ReasonWindowNotOpenYet:
		return pendingStyle.Render("opens " + timeutil.FormatRelative(now, d.Window.From))
	case eligibility.ReasonStorageNotReady:
		return deniedStyle.Render("storage not ready")
	default:
		return mutedStyle.Render("closed")
	}
}
