package status

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/msageha/bankstander/internal/setup"
	"github.com/msageha/bankstander/internal/uds"
)

const refreshInterval = time.Second

type reportMsg struct {
	report Report
	err    error
}

type actionMsg struct{ err error }

// watchModel polls the daemon and redraws the panel every second.
type watchModel struct {
	ctx    context.Context
	query  func(context.Context) (Report, error)
	toggle func(context.Context, bool) error
	stop   func(context.Context) error

	report Report
	err    error
	note   string
}

func newWatchModel(ctx context.Context, paths setup.Paths) watchModel {
	c := uds.NewClient(paths.Socket())
	c.SetTimeout(2 * time.Second)
	return watchModel{
		ctx:   ctx,
		query: func(ctx context.Context) (Report, error) { return Query(ctx, paths) },
		toggle: func(ctx context.Context, pause bool) error {
			cmd := uds.CmdResume
			if pause {
				cmd = uds.CmdPause
			}
			return c.Call(ctx, cmd, nil, nil)
		},
		stop: func(ctx context.Context) error { return c.Call(ctx, uds.CmdStop, nil, nil) },
	}
}

func (m watchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		r, err := m.query(m.ctx)
		return reportMsg{report: r, err: err}
	}
}

func (m watchModel) scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		r, err := m.query(m.ctx)
		return reportMsg{report: r, err: err}
	})
}

func (m watchModel) Init() tea.Cmd {
	return m.fetch()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case reportMsg:
		m.report, m.err = msg.report, msg.err
		return m, m.scheduleRefresh()

	case actionMsg:
		if msg.err != nil {
			m.note = msg.err.Error()
		}
		return m, m.fetch()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p":
			if !m.report.Running {
				return m, nil
			}
			pause := !m.report.Paused
			m.note = ""
			return m, func() tea.Msg { return actionMsg{err: m.toggle(m.ctx, pause)} }
		case "s":
			if !m.report.Running {
				return m, nil
			}
			m.note = "stopping..."
			return m, func() tea.Msg { return actionMsg{err: m.stop(m.ctx)} }
		}
	}
	return m, nil
}

var hintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))

func (m watchModel) View() string {
	body := Render(m.report)
	if m.err != nil {
		body = hintStyle.Render("status unavailable: " + m.err.Error())
	}
	if m.note != "" {
		body += "\n" + pauseStyle.Render(m.note)
	}
	return body + "\n" + hintStyle.Render("p pause/resume • s stop • q quit") + "\n"
}

// Watch runs the live view until the user quits or ctx is cancelled.
func Watch(ctx context.Context, paths setup.Paths) error {
	p := tea.NewProgram(newWatchModel(ctx, paths), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
