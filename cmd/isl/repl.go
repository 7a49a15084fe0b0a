package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/InsulaLabs/isl/pkg/slp"
	"github.com/InsulaLabs/isl/runtime"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	resultStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	outputStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	statusStyle  = lipgloss.NewStyle().Faint(true)
	bannerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	prompt       = "isl> "
	continuation = "...  "
)

// programWriter routes process output through the running program so it is
// printed above the input line. Without a program it writes to stdout.
type programWriter struct {
	mu   sync.Mutex
	prog *tea.Program
}

func (w *programWriter) attach(p *tea.Program) {
	w.mu.Lock()
	w.prog = p
	w.mu.Unlock()
}

func (w *programWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	p := w.prog
	w.mu.Unlock()
	if p == nil {
		return os.Stdout.Write(b)
	}
	p.Println(outputStyle.Render(strings.TrimRight(string(b), "\n")))
	return len(b), nil
}

type evalResultMsg struct {
	value slp.Obj
	env   *slp.Env
	err   error
}

type replModel struct {
	ctx   context.Context
	sched *runtime.Scheduler
	env   *slp.Env

	input   textinput.Model
	spinner spinner.Model
	pending string
	running bool

	history    []string
	historyIdx int

	quitting bool
}

func newReplModel(ctx context.Context, sched *runtime.Scheduler) replModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render(prompt)
	ti.Placeholder = "(+ 1 2)"
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return replModel{
		ctx:     ctx,
		sched:   sched,
		env:     slp.NewEnv(),
		input:   ti,
		spinner: sp,
	}
}

func runRepl(ctx context.Context, sched *runtime.Scheduler, out *programWriter) error {
	p := tea.NewProgram(newReplModel(ctx, sched), tea.WithContext(ctx))
	out.attach(p)
	defer out.attach(nil)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m replModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tea.Println(bannerStyle.Render("isl")+statusStyle.Render("  ctrl+d to quit, :ps lists processes")),
	)
}

func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlD:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyCtrlC:
			if m.pending == "" && m.input.Value() == "" {
				m.quitting = true
				return m, tea.Quit
			}
			m.pending = ""
			m.input.Reset()
			m.input.Prompt = promptStyle.Render(prompt)
			return m, nil
		case tea.KeyUp:
			m.navigateHistory(-1)
			return m, nil
		case tea.KeyDown:
			m.navigateHistory(1)
			return m, nil
		case tea.KeyEnter:
			if m.running {
				return m, nil
			}
			return m.submit()
		}

	case evalResultMsg:
		m.running = false
		if msg.err != nil {
			return m, tea.Println(errorStyle.Render("error: " + describeError(msg.err)))
		}
		m.env = msg.env
		return m, tea.Println(resultStyle.Render(msg.value.Encode()))

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m replModel) submit() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	m.input.Reset()

	echo := tea.Println(m.input.Prompt + line)
	src := line
	if m.pending != "" {
		src = m.pending + "\n" + line
	}
	src = strings.TrimSpace(src)
	if src == "" {
		return m, echo
	}

	switch src {
	case "exit", "quit":
		m.quitting = true
		return m, tea.Sequence(echo, tea.Quit)
	case ":ps":
		return m, tea.Sequence(echo, tea.Println(m.processTable()))
	}

	exprs, err := slp.Parse(src)
	var perr *slp.ParseError
	if errors.As(err, &perr) && perr.Incomplete() {
		m.pending = src
		m.input.Prompt = promptStyle.Render(continuation)
		return m, echo
	}

	m.pending = ""
	m.input.Prompt = promptStyle.Render(prompt)
	m.history = append(m.history, src)
	m.historyIdx = len(m.history)

	if err != nil {
		return m, tea.Sequence(echo, tea.Println(errorStyle.Render("error: "+describeError(err))))
	}

	m.running = true
	return m, tea.Batch(echo, m.spinner.Tick, m.evaluate(exprs))
}

// evaluate runs one input as a root process seeded with the environment
// left by the previous input.
func (m replModel) evaluate(exprs []slp.Obj) tea.Cmd {
	ctx, sched, env := m.ctx, m.sched, m.env
	return func() tea.Msg {
		value, next, err := sched.Exec(ctx, exprs, env)
		return evalResultMsg{value: value, env: next, err: err}
	}
}

func (m *replModel) navigateHistory(delta int) {
	if len(m.history) == 0 {
		return
	}
	idx := m.historyIdx + delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(m.history) {
		m.historyIdx = len(m.history)
		m.input.SetValue("")
		return
	}
	m.historyIdx = idx
	m.input.SetValue(m.history[idx])
	m.input.CursorEnd()
}

func (m replModel) processTable() string {
	procs := m.sched.Processes()
	if len(procs) == 0 {
		return statusStyle.Render("no live processes")
	}
	sort.Slice(procs, func(i, j int) bool {
		return procs[i].CreatedAt.Before(procs[j].CreatedAt)
	})

	var b strings.Builder
	for i, info := range procs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %-10s mailbox=%d watchers=%d reductions=%d",
			info.Pid, info.State, info.Mailbox, info.Watchers, info.Reductions)
	}
	return b.String()
}

func (m replModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n")

	stats := m.sched.Stats()
	status := fmt.Sprintf("live %d  retired %d  dropped %d", stats.Live, stats.Retired, stats.Dropped)
	if m.running {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
	}
	b.WriteString(statusStyle.Render(status))
	b.WriteString("\n")
	return b.String()
}
