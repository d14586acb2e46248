package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	dto "github.com/prometheus/client_model/go"
)

const monitorPollInterval = 2 * time.Second

var (
	colorPrimary = lipgloss.Color("12")
	colorDim     = lipgloss.Color("240")
	colorError   = lipgloss.Color("9")
)

func monitorCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live-tail a running listen/send instance's Prometheus counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := tea.NewProgram(newMonitorModel(addr))
			_, err := p.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:9090", "base URL of the instance's /metrics endpoint")
	return cmd
}

type metricsScrapedMsg struct {
	families map[string]*dto.MetricFamily
	err      error
}

type monitorPollTickMsg struct{}

type monitorModel struct {
	addr     string
	families map[string]*dto.MetricFamily
	err      error
	width    int
}

func newMonitorModel(addr string) monitorModel {
	return monitorModel{addr: strings.TrimRight(addr, "/")}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(scrapeMetrics(m.addr), pollMonitorTick())
}

func scrapeMetrics(addr string) tea.Cmd {
	return func() tea.Msg {
		resp, err := http.Get(addr + "/metrics")
		if err != nil {
			return metricsScrapedMsg{err: err}
		}
		defer resp.Body.Close()

		var parser expfmt.TextParser
		families, err := parser.TextToMetricFamilies(resp.Body)
		if err != nil {
			return metricsScrapedMsg{err: err}
		}
		return metricsScrapedMsg{families: families}
	}
}

func pollMonitorTick() tea.Cmd {
	return tea.Tick(monitorPollInterval, func(_ time.Time) tea.Msg {
		return monitorPollTickMsg{}
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case metricsScrapedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.families = msg.families
		}
		return m, nil

	case monitorPollTickMsg:
		return m, tea.Batch(scrapeMetrics(m.addr), pollMonitorTick())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m monitorModel) View() string {
	var b strings.Builder
	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	b.WriteString(title.Render("fabrics monitor") + "  " + lipgloss.NewStyle().Foreground(colorDim).Render(m.addr))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(colorError).Render("scrape failed: " + m.err.Error()))
		b.WriteString("\n")
	} else if m.families == nil {
		b.WriteString(lipgloss.NewStyle().Foreground(colorDim).Render("waiting for first scrape..."))
		b.WriteString("\n")
	} else {
		writeGauge(&b, m.families, "fabrics_connections_active", []string{"role", "backend"})
		b.WriteString("\n")
		writeCounter(&b, m.families, "fabrics_transfers_completed_total", []string{"layout", "outcome"})
		b.WriteString("\n")
		writeGauge(&b, m.families, "fabrics_bounce_buffer_entries_in_use", []string{"direction"})
		b.WriteString("\n")
		writeCounter(&b, m.families, "fabrics_peer_state_transitions_total", []string{"role", "state"})
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(colorDim).Render("q to quit · refreshes every " + monitorPollInterval.String()))
	return b.String()
}

func writeGauge(b *strings.Builder, families map[string]*dto.MetricFamily, name string, labels []string) {
	fam, ok := families[name]
	if !ok {
		return
	}
	writeFamilyHeader(b, name)
	for _, row := range sortedMetrics(fam, labels) {
		fmt.Fprintf(b, "  %-40s %10.0f\n", row.label, row.metric.GetGauge().GetValue())
	}
}

func writeCounter(b *strings.Builder, families map[string]*dto.MetricFamily, name string, labels []string) {
	fam, ok := families[name]
	if !ok {
		return
	}
	writeFamilyHeader(b, name)
	for _, row := range sortedMetrics(fam, labels) {
		fmt.Fprintf(b, "  %-40s %10.0f\n", row.label, row.metric.GetCounter().GetValue())
	}
}

func writeFamilyHeader(b *strings.Builder, name string) {
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(strings.TrimPrefix(name, "fabrics_")))
	b.WriteString("\n")
}

type metricRow struct {
	label  string
	metric *dto.Metric
}

// sortedMetrics renders each series' label values joined by "/", sorted for
// a stable display order across scrapes (Prometheus doesn't guarantee one).
func sortedMetrics(fam *dto.MetricFamily, labelOrder []string) []metricRow {
	rows := make([]metricRow, 0, len(fam.Metric))
	for _, m := range fam.Metric {
		values := make(map[string]string, len(m.Label))
		for _, lp := range m.Label {
			values[lp.GetName()] = lp.GetValue()
		}
		parts := make([]string, 0, len(labelOrder))
		for _, name := range labelOrder {
			parts = append(parts, values[name])
		}
		rows = append(rows, metricRow{label: strings.Join(parts, "/"), metric: m})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].label < rows[j].label })
	return rows
}
