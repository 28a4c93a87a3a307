package ui

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// SessionSummary is printed when a game session ends.
type SessionSummary struct {
	Room     string
	Self     uint32
	Role     string
	Peers    []PeerRow
	Duration time.Duration
}

// SessionSummaryView renders the summary with go-pretty.
func SessionSummaryView(s SessionSummary) string {
	t := table.NewWriter()
	t.SetTitle("%s Session Summary", IconGame)
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Room", s.Room},
		{"Role", s.Role},
		{"Peer ID", s.Self},
		{"Duration", s.Duration.Round(time.Second)},
	})
	t.AppendSeparator()

	connected := 0
	for _, p := range s.Peers {
		if p.Self {
			continue
		}
		if p.Status == "connected" {
			connected++
		}
		label := fmt.Sprintf("Peer %d", p.ID)
		if p.Name != "" {
			label += " " + p.Name
		}
		t.AppendRow(table.Row{label, fmt.Sprintf("%s (%s)", p.Status, formatRTT(p))})
	}
	t.AppendFooter(table.Row{"Connected", connected})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: text.Colors{text.Bold}},
	})
	return t.Render()
}

func RenderSessionSummary(s SessionSummary) {
	fmt.Println(SessionSummaryView(s))
}
