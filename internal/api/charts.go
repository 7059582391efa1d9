package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/vessel.report/internal/db"
	"github.com/banshee-data/vessel.report/internal/httputil"
)

// maxChartBuckets bounds the alerts-over-time bar count so a wide range with
// a small interval cannot produce a multi-megabyte page.
const maxChartBuckets = 1000

// showAlertsChart renders an HTML page with alert counts over time and a
// severity histogram. Query params:
//   - start_time, end_time (RFC 3339; default last 24h)
//   - interval (Go duration, default 1h) for the time buckets
func (s *Server) showAlertsChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	until := time.Now().UTC()
	since := until.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'start_time' parameter (want RFC 3339)")
			return
		}
		since = t
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'end_time' parameter (want RFC 3339)")
			return
		}
		until = t
	}
	interval := time.Hour
	if v := r.URL.Query().Get("interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			httputil.BadRequest(w, "invalid 'interval' parameter (want a positive duration)")
			return
		}
		interval = d
	}
	if !until.After(since) {
		httputil.BadRequest(w, "'end_time' must be after 'start_time'")
		return
	}
	if int(until.Sub(since)/interval) > maxChartBuckets {
		httputil.BadRequest(w, fmt.Sprintf("time range spans more than %d intervals", maxChartBuckets))
		return
	}

	buckets, err := s.db.AlertBuckets(since, until, interval)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to bucket alerts: %v", err))
		return
	}
	severities, err := s.db.AlertSeverities(db.AlertFilter{Since: since, Until: until})
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load alert severities: %v", err))
		return
	}

	page := components.NewPage()
	page.AddCharts(alertsOverTimeChart(buckets, since, until, interval))
	page.AddCharts(severityHistogramChart(severities))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// alertsOverTimeChart builds a bar chart of per-interval alert counts, with
// empty buckets filled in so gaps show as gaps.
func alertsOverTimeChart(buckets map[time.Time]int, since, until time.Time, interval time.Duration) *charts.Bar {
	var x []string
	var y []opts.BarData
	for t := since.Truncate(interval); t.Before(until); t = t.Add(interval) {
		x = append(x, t.UTC().Format("2006-01-02 15:04"))
		y = append(y, opts.BarData{Value: buckets[t]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "AIS Alerts", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Alerts Over Time",
			Subtitle: fmt.Sprintf("%s to %s, %s buckets", since.UTC().Format(time.RFC3339), until.UTC().Format(time.RFC3339), interval),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("alerts", y)
	return bar
}

// severityHistogramChart builds a histogram of alert severities in ten-point
// bands; 100 lands in the top band.
func severityHistogramChart(severities []float64) *charts.Bar {
	bands := make([]int, 10)
	for _, sev := range severities {
		i := int(sev) / 10
		if i > 9 {
			i = 9
		}
		if i < 0 {
			i = 0
		}
		bands[i]++
	}

	x := make([]string, len(bands))
	y := make([]opts.BarData, len(bands))
	for i, n := range bands {
		hi := i*10 + 9
		if i == 9 {
			hi = 100
		}
		x[i] = fmt.Sprintf("%d-%d", i*10, hi)
		y[i] = opts.BarData{Value: n}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Alert Severity",
			Subtitle: fmt.Sprintf("%d alerts", len(severities)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("alerts", y,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)
	return bar
}
