// Package status reports on a session: a one-shot panel, JSON, or a live
// terminal view.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/msageha/bankstander/internal/model"
	"github.com/msageha/bankstander/internal/setup"
	"github.com/msageha/bankstander/internal/uds"
	atomicyaml "github.com/msageha/bankstander/internal/yaml"
)

// Where a report came from.
const (
	SourceDaemon = "daemon"
	SourceFile   = "file"
	SourceNone   = "none"
)

const itemNameWidth = 15

// Report is what the CLI shows about the workspace session.
type Report struct {
	Running bool   `json:"running"`
	Source  string `json:"source"`
	model.StatusReport
	PerHour   int    `json:"items_per_hour"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Query asks the running daemon for its status and falls back to the last
// status file it wrote.
func Query(ctx context.Context, paths setup.Paths) (Report, error) {
	c := uds.NewClient(paths.Socket())
	c.SetTimeout(2 * time.Second)

	var sr model.StatusReport
	err := c.Call(ctx, uds.CmdStatus, nil, &sr)
	if err == nil {
		return Report{Running: true, Source: SourceDaemon, StatusReport: sr, PerHour: sr.PerHour()}, nil
	}
	// A daemon that answered with an error is reported as is; only an
	// unreachable one falls back to the file.
	var detail *uds.ErrorDetail
	if errors.As(err, &detail) {
		return Report{}, err
	}

	var sf model.StatusFile
	err = atomicyaml.ReadFile(paths.StatusFile(), atomicyaml.FileTypeStatus, &sf)
	if errors.Is(err, os.ErrNotExist) {
		return Report{Source: SourceNone}, nil
	}
	if err != nil {
		return Report{}, err
	}
	snap := sf.Snapshot()
	return Report{
		Source:       SourceFile,
		StatusReport: model.StatusReport{Snapshot: snap, PID: sf.PID},
		PerHour:      snap.PerHour(),
		UpdatedAt:    sf.UpdatedAt,
	}, nil
}

// Run prints the workspace status as a panel or as JSON.
func Run(ctx context.Context, paths setup.Paths, w io.Writer, jsonOutput bool) error {
	r, err := Query(ctx, paths)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	_, err = fmt.Fprintln(w, Render(r))
	return err
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(9)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#DDDDDD"))
	pauseStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFB86C"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	phaseColors = map[model.Phase]lipgloss.Color{
		model.PhaseIdle:       "#AAAAAA",
		model.PhaseBanking:    "#F5C542",
		model.PhaseProcessing: "#6BCB77",
		model.PhaseStopped:    "#FF6B6B",
	}
)

// Render draws the status panel.
func Render(r Report) string {
	if r.Source == SourceNone {
		return boxStyle.Render(titleStyle.Render("bankstander") + "\n" +
			valueStyle.Render("No session has run in this workspace."))
	}

	title := "bankstander"
	if id := r.SessionID; id != "" {
		title += " " + shortID(id)
	}
	if !r.Running {
		title += " (not running)"
	}

	phase := lipgloss.NewStyle().Bold(true).Foreground(phaseColors[r.Phase]).Render(r.Phase.String())
	if r.Paused {
		phase += " " + pauseStyle.Render("PAUSED")
	}

	rate := "-"
	if r.PerHour > 0 {
		rate = fmt.Sprintf("%d/h", r.PerHour)
	}

	lines := []string{
		titleStyle.Render(title),
		row("Runtime", FormatRuntime(r.Elapsed)),
		labelStyle.Render("Status") + phase,
		row("Items", fmt.Sprintf("%d (%s)", r.ItemsProcessed, rate)),
	}
	if r.FirstItem != "" {
		lines = append(lines, row("Item", Truncate(r.FirstItem, itemNameWidth)))
	}
	if r.Action != "" && !strings.EqualFold(r.Action, model.DefaultAction) {
		lines = append(lines, row("Action", r.Action))
	}
	if r.StoppedReason != "" {
		lines = append(lines, row("Reason", r.StoppedReason))
	}
	if !r.Running && r.UpdatedAt != "" {
		lines = append(lines, row("Updated", r.UpdatedAt))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

// FormatRuntime renders d as hh:mm:ss; hours are not wrapped at 24.
func FormatRuntime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

// Truncate shortens s to at most n runes, marking the cut with "..".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 2 {
		return string(r[:n])
	}
	return string(r[:n-2]) + ".."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
