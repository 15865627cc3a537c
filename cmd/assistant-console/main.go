// Command assistant-console is a terminal client for assistant-server.
//
// Type a query kind followed by its arguments, e.g.
//
//	runwaysAtAirport LFBO
//	frequencyAtAirport TWR LFBO
//	weatherAtLocation temperature Toulouse
//
// or one of the commands /follow ID, /unfollow, /search TEXT, /kinds, /quit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/airspace-assistant/pkg/query"
)

const (
	maxHistory     = 50
	visibleHistory = 15
	requestTimeout = 10 * time.Second
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Background(lipgloss.Color("235")).Padding(0, 1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	inputStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	foundStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	notFoundStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// entry is one line of the conversation.
type entry struct {
	prompt  string
	text    string
	outcome query.Outcome
	err     bool
}

type model struct {
	client  *apiClient
	input   string
	history []entry
	status  status
	flight  query.FlightData
	err     error
	busy    bool
}

type tickMsg time.Time

type statusMsg struct {
	status status
	flight query.FlightData
	err    error
}

type answerMsg entry

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick())
}

func (m model) refresh() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		s, err := client.status(ctx)
		if err != nil {
			return statusMsg{err: err}
		}
		f, err := client.following(ctx)
		return statusMsg{status: s, flight: f, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input)
			m.input = ""
			if line == "" || m.busy {
				return m, nil
			}
			cmd, quit := m.submit(line)
			if quit {
				return m, tea.Quit
			}
			m.busy = true
			return m, cmd
		case tea.KeyBackspace:
			if len(m.input) > 0 {
				r := []rune(m.input)
				m.input = string(r[:len(r)-1])
			}
		case tea.KeySpace:
			m.input += " "
		case tea.KeyRunes:
			m.input += string(msg.Runes)
		}

	case answerMsg:
		m.busy = false
		m.history = append(m.history, entry(msg))
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
		return m, m.refresh()

	case statusMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.flight = msg.flight
		}

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())
	}

	return m, nil
}

// submit turns an input line into the command that answers it.
func (m model) submit(line string) (tea.Cmd, bool) {
	client := m.client
	run := func(fn func(ctx context.Context) (string, query.Outcome, error)) tea.Cmd {
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			defer cancel()

			text, outcome, err := fn(ctx)
			if err != nil {
				return answerMsg{prompt: line, text: err.Error(), err: true}
			}
			return answerMsg{prompt: line, text: text, outcome: outcome}
		}
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q":
		return nil, true

	case "/kinds":
		return run(func(ctx context.Context) (string, query.Outcome, error) {
			kinds, err := client.kinds(ctx)
			if err != nil {
				return "", 0, err
			}
			names := make([]string, len(kinds))
			for i, k := range kinds {
				names[i] = string(k)
			}
			return strings.Join(names, ", "), query.Found, nil
		}), false

	case "/follow":
		if len(fields) < 2 {
			return run(func(context.Context) (string, query.Outcome, error) {
				return "", 0, errors.New("usage: /follow ID")
			}), false
		}
		return run(func(ctx context.Context) (string, query.Outcome, error) {
			f, err := client.follow(ctx, fields[1])
			if err != nil {
				return "", 0, err
			}
			return "Following " + describeFlight(f), query.Found, nil
		}), false

	case "/unfollow":
		return run(func(ctx context.Context) (string, query.Outcome, error) {
			return "Stopped following", query.Found, client.unfollow(ctx)
		}), false

	case "/search":
		partial := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		return run(func(ctx context.Context) (string, query.Outcome, error) {
			found, err := client.search(ctx, partial, 10)
			if err != nil {
				return "", 0, err
			}
			if len(found) == 0 {
				return "No matching traffic", query.NotFound, nil
			}
			labels := make([]string, len(found))
			for i, s := range found {
				labels[i] = s.Label + " [" + s.ID + "]"
			}
			return strings.Join(labels, ", "), query.Found, nil
		}), false
	}

	kind, arg1, arg2 := parseQuery(line)
	return run(func(ctx context.Context) (string, query.Outcome, error) {
		env, err := client.query(ctx, kind, arg1, arg2)
		return env.Text, env.Outcome, err
	}), false
}

// parseQuery splits "kind arg1 rest..." into the wire tuple. The rest is
// kept whole so place names may contain spaces.
func parseQuery(line string) (kind string, arg1, arg2 any) {
	fields := strings.Fields(line)
	kind = fields[0]
	if len(fields) > 1 {
		arg1 = fields[1]
	}
	if len(fields) > 2 {
		arg2 = strings.Join(fields[2:], " ")
	}
	return kind, arg1, arg2
}

func describeFlight(f query.FlightData) string {
	name := strings.TrimSpace(f.Callsign)
	if name == "" {
		name = f.ID
	}
	if f.Registration != "" {
		name += " (" + f.Registration + ")"
	}
	if f.OriginICAO != "" || f.DestinationICAO != "" {
		name += fmt.Sprintf(" %s → %s", orDash(f.OriginICAO), orDash(f.DestinationICAO))
	}
	return name
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("AIRSPACE ASSISTANT"))
	s.WriteString("\n")

	status := fmt.Sprintf("%d flights within %.0f nm", m.status.NumberFlights, m.status.RadiusNM)
	if !m.status.UpdatedAt.IsZero() {
		status += " · updated " + m.status.UpdatedAt.Local().Format("15:04:05")
	}
	if m.flight.IsFollowing {
		status += " · following " + describeFlight(m.flight)
	}
	s.WriteString(statusStyle.Render(status))
	s.WriteString("\n")
	if m.err != nil {
		s.WriteString(errStyle.Render("server: " + m.err.Error()))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	start := 0
	if len(m.history) > visibleHistory {
		start = len(m.history) - visibleHistory
	}
	for _, e := range m.history[start:] {
		s.WriteString(promptStyle.Render("> " + e.prompt))
		s.WriteString("\n")
		style := foundStyle
		switch {
		case e.err:
			style = errStyle
		case e.outcome != query.Found:
			style = notFoundStyle
		}
		s.WriteString("  " + style.Render(e.text))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	cursor := "_"
	if m.busy {
		cursor = " …"
	}
	s.WriteString(inputStyle.Render("> " + m.input + cursor))
	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("ENTER: Ask  /kinds  /follow ID  /unfollow  /search TEXT  ESC: Quit"))
	return s.String()
}

func main() {
	server := flag.String("server", "http://localhost:8080", "assistant-server base URL")
	flag.Parse()

	m := model{client: newAPIClient(strings.TrimRight(*server, "/"))}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
