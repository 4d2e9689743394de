package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/bnplbot/internal/domain"
)

const (
	barWidth     = 20
	recentShown  = 10
	maxDetailLen = 48
)

// Console implementa ports.Reporter escribiendo tablas a un io.Writer.
type Console struct {
	out io.Writer
	now func() time.Time
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// Report imprime progreso de objetivos, contadores del día, pool y actividad reciente.
func (c *Console) Report(_ context.Context, s domain.StatusReport) error {
	c.printHeader(s)
	c.printGoals(s.Progress)
	c.printDaily(s.State)
	c.printPool(s.Pool)
	c.printRecent(s.State.RecentActivity)
	return nil
}

func (c *Console) printHeader(s domain.StatusReport) {
	state := "stopped"
	switch {
	case s.Scheduler.Running && s.Scheduler.Paused:
		state = "paused"
	case s.Scheduler.Running:
		state = "running"
	}

	fmt.Fprintf(c.out, "\n=== BNPL BOT [%s] %s ===\n", state, s.GeneratedAt.Format("2006-01-02 15:04:05"))
	if s.State.StartedAt != nil {
		fmt.Fprintf(c.out, "  started:      %s\n", humanize.Time(*s.State.StartedAt))
	}
	if !s.Scheduler.NextTickAt.IsZero() {
		fmt.Fprintf(c.out, "  next tick:    %s\n", humanize.RelTime(s.Scheduler.NextTickAt, c.now(), "ago", "from now"))
	}
	if !s.Scheduler.HoldUntil.IsZero() {
		fmt.Fprintf(c.out, "  cooldown til: %s\n", s.Scheduler.HoldUntil.Format(time.TimeOnly))
	}
	if s.ConsecutiveFailures > 0 {
		fmt.Fprintf(c.out, "  ⚠ consecutive failures: %d\n", s.ConsecutiveFailures)
	}
	if s.BreakerTrips > 0 {
		fmt.Fprintf(c.out, "  breaker trips: %d\n", s.BreakerTrips)
	}
	fmt.Fprintf(c.out, "  total volume: $%s\n", money(s.State.TotalVolume))
}

func (c *Console) printGoals(p domain.GoalProgress) {
	fmt.Fprintln(c.out, "\n  GOALS")
	table := tablewriter.NewWriter(c.out)
	table.Header("Goal", "Current", "Target", "Progress")
	rows := []struct {
		name  string
		m     domain.Metric
		money bool
	}{
		{"TVL", p.TVL, true},
		{"Merchants", p.Merchants, false},
		{"Users", p.Users, false},
		{"Daily tx", p.DailyTx, false},
	}
	for _, r := range rows {
		cur, tgt := count(r.m.Current), count(r.m.Target)
		if r.money {
			cur, tgt = "$"+money(r.m.Current), "$"+money(r.m.Target)
		}
		table.Append(r.name, cur, tgt, bar(r.m.Percentage))
	}
	table.Render()
}

func (c *Console) printDaily(s domain.BotState) {
	ds := s.DailyStats
	fmt.Fprintf(c.out, "\n  TODAY (%s): %s tx  ok:%s  failed:%s  volume:$%s\n",
		ds.Date, count(float64(ds.TxCount)), count(float64(ds.SuccessCount)),
		count(float64(ds.FailureCount)), money(ds.Volume))

	if len(ds.Scenarios) == 0 {
		return
	}
	types := make([]string, 0, len(ds.Scenarios))
	for t := range ds.Scenarios {
		types = append(types, string(t))
	}
	sort.Strings(types)

	table := tablewriter.NewWriter(c.out)
	table.Header("Scenario", "Runs")
	for _, t := range types {
		table.Append(t, fmt.Sprintf("%d", ds.Scenarios[domain.ScenarioType(t)]))
	}
	table.Render()
}

func (c *Console) printPool(p domain.PoolStats) {
	fmt.Fprintf(c.out, "\n  POOL: merchants %d (approved %d, pending %d) | users %d (active %d) | liquidators %d\n",
		p.TotalMerchants, p.ApprovedMerchants, p.PendingMerchants, p.TotalUsers, p.ActiveUsers, p.Liquidators)
}

func (c *Console) printRecent(entries []domain.ActivityEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "\n  No recent activity")
		return
	}
	if len(entries) > recentShown {
		entries = entries[len(entries)-recentShown:]
	}
	fmt.Fprintf(c.out, "\n  RECENT ACTIVITY (last %d)\n", len(entries))
	c.PrintHistory(entries)
}

// PrintHistory imprime filas del historial, la más reciente al final.
func (c *Console) PrintHistory(entries []domain.ActivityEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "  No activity in range")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("When", "Scenario", "Result", "Volume", "Detail")
	for _, e := range entries {
		result := "OK"
		detail := detailLabel(e.Details)
		if !e.Success {
			result = "FAIL"
			detail = e.Error
		}
		table.Append(
			e.Timestamp.Format("01-02 15:04:05"),
			string(e.Scenario),
			result,
			"$"+money(e.Volume),
			truncate(detail, maxDetailLen),
		)
	}
	table.Render()
}

// PrintSummary imprime el agregado diario por escenario.
func (c *Console) PrintSummary(rows []domain.ActivitySummaryRow) {
	if len(rows) == 0 {
		fmt.Fprintln(c.out, "  No activity in range")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Date", "Scenario", "Result", "Count", "Volume")

	var total int64
	var volume float64
	for _, r := range rows {
		result := "OK"
		if !r.Success {
			result = "FAIL"
		}
		table.Append(r.Date, string(r.Scenario), result, humanize.Comma(r.Count), "$"+money(r.Volume))
		total += r.Count
		volume += r.Volume
	}
	table.Render()
	fmt.Fprintf(c.out, "  TOTAL: %s tx  $%s\n", humanize.Comma(total), money(volume))
}

// --- helpers ---

func bar(pct float64) string {
	filled := int(pct / 100 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	return fmt.Sprintf("%s%s %5.1f%%", strings.Repeat("█", filled), strings.Repeat("░", barWidth-filled), pct)
}

func money(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}

func count(v float64) string {
	return humanize.Comma(int64(v))
}

func detailLabel(d map[string]any) string {
	if len(d) == 0 {
		return ""
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, d[k]))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
