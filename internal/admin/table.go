package admin

import (
	"fmt"
	"math"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/angeloszaimis/querygate/internal/guard"
)

// RenderKeys formats tracked keys as a table for the terminal.
func RenderKeys(keys []guard.Status) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Key", "State", "Failures", "Retry After", "Blocked Until"})

	blocked := 0
	for _, s := range keys {
		retry, until := "-", "-"
		if s.State == guard.StateOpen {
			blocked++
			retry = fmt.Sprintf("%ds", int(math.Ceil(s.RetryAfter.Seconds())))
			until = s.BlockedUntil.UTC().Format(time.RFC3339)
		}

		t.AppendRow(table.Row{s.Key, s.State.String(), s.ConsecutiveFailures, retry, until})
	}

	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d blocked", blocked), fmt.Sprintf("%d tracked", len(keys))})

	return t.Render()
}
