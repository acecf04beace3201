// Package output renders readings and session state for the one-shot CLI
// path.
package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/visitlens/visitlens/internal/core"
)

// StatusTable renders a reading against the session as an ASCII table.
func StatusTable(reading core.Reading, session core.TrackingSession) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Field", "Value"})

	state := "idle"
	if session.Active {
		state = fmt.Sprintf("tracking %s", session.TargetID)
	}

	t.AppendRow(table.Row{"State", state})
	t.AppendRow(table.Row{"Players", formatCount(reading.PlayerCount, reading.Synthetic)})
	t.AppendRow(table.Row{"Visits", formatCount(reading.VisitCount, reading.Synthetic)})
	t.AppendRow(table.Row{"Goal", fmt.Sprintf("%d", session.Goal)})
	t.AppendRow(table.Row{"Progress", progressBar(reading.VisitCount, session.Goal)})
	t.AppendRow(table.Row{"Watermark", fmt.Sprintf("%d", session.HighWatermarkVisits)})
	t.AppendRow(table.Row{"Obtained", reading.ObtainedAt.Format("2006-01-02 15:04:05 MST")})

	return t.Render()
}

func formatCount(value int64, synthetic bool) string {
	if synthetic {
		return fmt.Sprintf("%d (synthetic)", value)
	}
	return fmt.Sprintf("%d", value)
}

func progressBar(visits, goal int64) string {
	ratio := core.ProgressRatio(visits, goal)
	const width = 20
	filled := int(ratio * width)
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return fmt.Sprintf("%s %.0f%%", bar, ratio*100)
}
