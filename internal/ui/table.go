package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// PeerRow is one line of the lobby peer table.
type PeerRow struct {
	ID     uint32
	Name   string
	Self   bool
	Host   bool
	Status string
	RTT    time.Duration
}

// PeerTable renders the lobby members using lipgloss/table
type PeerTable struct {
	rows    []PeerRow
	showRTT bool
}

func NewPeerTable(rows []PeerRow) *PeerTable {
	return &PeerTable{rows: rows, showRTT: true}
}

// HideRTT hides the round trip column
func (t *PeerTable) HideRTT() *PeerTable {
	t.showRTT = false
	return t
}

func (t *PeerTable) View() string {
	if len(t.rows) == 0 {
		return MutedStyle.Render("No peers")
	}

	headers := []string{"Peer", "Name", "Status"}
	if t.showRTT {
		headers = append(headers, IconPing+" RTT")
	}

	var rows [][]string
	for _, r := range t.rows {
		row := []string{peerLabel(r), displayName(r), r.Status}
		if t.showRTT {
			row = append(row, formatRTT(r))
		}
		rows = append(rows, row)
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func (t *PeerTable) Render() {
	fmt.Println(t.View())
}

func peerLabel(r PeerRow) string {
	icon := IconPeer
	if r.Host {
		icon = IconHost
	}
	label := fmt.Sprintf("%s %d", icon, r.ID)
	if r.Self {
		label += " (you)"
	}
	return label
}

// displayName is the announced name, or a dash until the hello arrives.
func displayName(r PeerRow) string {
	if r.Name == "" {
		return "-"
	}
	return r.Name
}

func formatRTT(r PeerRow) string {
	if r.Self || r.RTT <= 0 {
		return "-"
	}
	return r.RTT.Round(time.Millisecond).String()
}

type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
	}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room Code:  %s\n%s Room Link:  %s",
		IconRoom,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
	)

	return SuccessBoxStyle.Render(content)
}
