// Command correlate replays hazard reports against a set of official alerts
// offline and prints the matches and the verdict each report would receive.
// It reads alerts in the feed's wire format, so a saved feed response can be
// checked directly.
//
// Usage:
//
//	go run ./cmd/correlate \
//	  -reports testdata/reports.json \
//	  -alerts testdata/alerts.json \
//	  [-assessments testdata/assessments.json] [-window 24h] [-radius 50] [-json]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/hazard-report-validator/internal/adapter/alertfeed"
	"github.com/couchcryptid/hazard-report-validator/internal/domain"
)

// options holds the replay settings taken from flags.
type options struct {
	reportsPath     string
	alertsPath      string
	assessmentsPath string
	window          time.Duration
	radiusKm        float64
	rejectAbove     float64
	asJSON          bool
}

// result is one report's replay outcome.
type result struct {
	ReportID string        `json:"report_id"`
	Status   domain.Status `json:"status"`
	Reason   string        `json:"reason"`
	Rule     string        `json:"rule"`
	Matches  []matchView   `json:"matches"`
}

type matchView struct {
	AlertID       string  `json:"alert_id"`
	Title         string  `json:"title"`
	DistanceKm    float64 `json:"distance_km"`
	TimeDiffHours float64 `json:"time_diff"`
}

func main() {
	var opts options
	flag.StringVar(&opts.reportsPath, "reports", "", "path to a JSON array of hazard reports")
	flag.StringVar(&opts.alertsPath, "alerts", "", "path to an alert feed document")
	flag.StringVar(&opts.assessmentsPath, "assessments", "", "optional path to a JSON object of report id to image assessment")
	flag.DurationVar(&opts.window, "window", domain.DefaultMatchWindow, "correlation time window")
	flag.Float64Var(&opts.radiusKm, "radius", domain.DefaultAlertRadiusKm, "radius for alerts without one, in km")
	flag.Float64Var(&opts.rejectAbove, "reject-confidence", domain.DefaultRejectConfidence, "confidence above which a non-ocean image rejects")
	flag.BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	flag.Parse()

	if opts.reportsPath == "" || opts.alertsPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "correlate:", err)
		os.Exit(1)
	}
}

func run(opts options, stdout, stderr io.Writer) error {
	var reports []domain.HazardReport
	if err := readJSON(opts.reportsPath, &reports); err != nil {
		return fmt.Errorf("read reports: %w", err)
	}

	alertsDoc, err := os.ReadFile(opts.alertsPath)
	if err != nil {
		return fmt.Errorf("read alerts: %w", err)
	}
	alerts, skipped, err := alertfeed.DecodeAlerts(alertsDoc)
	if err != nil {
		return fmt.Errorf("decode alerts: %w", err)
	}
	for _, id := range skipped {
		fmt.Fprintf(stderr, "skipping alert %s: unknown alert type\n", id)
	}

	assessments := map[string]domain.ImageAssessment{}
	if opts.assessmentsPath != "" {
		if err := readJSON(opts.assessmentsPath, &assessments); err != nil {
			return fmt.Errorf("read assessments: %w", err)
		}
	}

	results := replay(reports, alerts, assessments, domain.NewMatcher(opts.window, opts.radiusKm), domain.NewDecisionPolicy(opts.rejectAbove))

	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return printTable(stdout, results)
}

func replay(
	reports []domain.HazardReport,
	alerts []domain.OfficialAlert,
	assessments map[string]domain.ImageAssessment,
	matcher domain.Matcher,
	policy domain.DecisionPolicy,
) []result {
	results := make([]result, 0, len(reports))
	for _, r := range reports {
		var assessment *domain.ImageAssessment
		if a, ok := assessments[r.ID]; ok {
			a = domain.NormalizeAssessment(a)
			assessment = &a
		}

		matches := matcher.Correlate(r, alerts)
		verdict, rule := policy.Explain(assessment, matches)

		views := make([]matchView, 0, len(matches))
		for _, m := range matches {
			views = append(views, matchView{
				AlertID:       m.AlertID(),
				Title:         m.Title(),
				DistanceKm:    m.RoundedDistanceKm(),
				TimeDiffHours: m.RoundedTimeDiffHours(),
			})
		}
		results = append(results, result{
			ReportID: r.ID,
			Status:   verdict.Status,
			Reason:   verdict.Reason,
			Rule:     rule,
			Matches:  views,
		})
	}
	return results
}

func printTable(w io.Writer, results []result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REPORT\tSTATUS\tMATCHES\tCLOSEST\tREASON")
	for _, r := range results {
		closest := "-"
		if len(r.Matches) > 0 {
			m := r.Matches[0]
			closest = fmt.Sprintf("%s (%.2f km, %.2f h)", m.AlertID, m.DistanceKm, m.TimeDiffHours)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ReportID, r.Status, len(r.Matches), closest, r.Reason)
	}
	return tw.Flush()
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
