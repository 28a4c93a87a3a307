package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const maxLobbyNotes = 6

// LobbyUI shows the live peer table of a game session.
type LobbyUI struct {
	program    *tea.Program
	model      *lobbyModel
	updateChan chan lobbyUpdate
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

type lobbyUpdate struct {
	rows []PeerRow
	note string
}

// tickMsg refreshes the elapsed time.
type tickMsg time.Time

type lobbyModel struct {
	room       string
	role       string
	rows       []PeerRow
	notes      []string
	spinner    spinner.Model
	startTime  time.Time
	updateChan chan lobbyUpdate
	quitting   bool
}

func NewLobbyUI(room, role string) *LobbyUI {
	updateChan := make(chan lobbyUpdate, 64)
	return &LobbyUI{
		model:      newLobbyModel(room, role, updateChan),
		updateChan: updateChan,
		done:       make(chan struct{}),
	}
}

func newLobbyModel(room, role string, updates chan lobbyUpdate) *lobbyModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return &lobbyModel{
		room:       room,
		role:       role,
		spinner:    s,
		startTime:  time.Now(),
		updateChan: updates,
	}
}

// Start runs the program inline in a goroutine. Done is closed when it exits.
func (ui *LobbyUI) Start() {
	ui.program = tea.NewProgram(ui.model)
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		defer close(ui.done)
		if _, err := ui.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// Update replaces the peer table and appends note to the log when non-empty.
func (ui *LobbyUI) Update(rows []PeerRow, note string) {
	select {
	case ui.updateChan <- lobbyUpdate{rows: rows, note: note}:
	default:
	}
}

// Done is closed once the user quits or Stop returns.
func (ui *LobbyUI) Done() <-chan struct{} {
	return ui.done
}

func (ui *LobbyUI) Stop() {
	ui.stopOnce.Do(func() {
		if ui.program != nil {
			ui.program.Quit()
		}
	})
	ui.wg.Wait()
}

func (m *lobbyModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForUpdates(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *lobbyModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updateChan
	}
}

func (m *lobbyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		if !m.quitting {
			cmds = append(cmds, tick())
		}

	case lobbyUpdate:
		if msg.rows != nil {
			m.rows = msg.rows
		}
		if msg.note != "" {
			m.notes = append(m.notes, msg.note)
			if len(m.notes) > maxLobbyNotes {
				m.notes = m.notes[len(m.notes)-maxLobbyNotes:]
			}
		}
		cmds = append(cmds, m.listenForUpdates())
	}

	return m, tea.Batch(cmds...)
}

func (m *lobbyModel) connected() int {
	n := 0
	for _, r := range m.rows {
		if !r.Self && r.Status == "connected" {
			n++
		}
	}
	return n
}

func (m *lobbyModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(fmt.Sprintf("\n%s %s %s\n\n", IconGame, TitleStyle.UnsetMarginBottom().Render("Room "+m.room), MutedStyle.Render(m.role)))
	b.WriteString(fmt.Sprintf("%s %d peer(s) connected  %s\n\n",
		m.spinner.View(),
		m.connected(),
		MutedStyle.Render(time.Since(m.startTime).Round(time.Second).String()),
	))
	b.WriteString(NewPeerTable(m.rows).View())
	b.WriteString("\n")

	for _, n := range m.notes {
		b.WriteString(MutedStyle.Render("  "+n) + "\n")
	}

	b.WriteString("\n" + MutedStyle.Render("Press q to leave"))
	return b.String()
}
