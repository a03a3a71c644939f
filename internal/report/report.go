// Package report renders the aggregated results of a run as a single HTML
// page of go-echarts charts.
package report

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/aggregate"
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/export"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	chartWidth  = "960px"
	chartHeight = "540px"
	// MaxSimilarityDocs caps the similarity heatmap to the first documents
	// in record order.
	MaxSimilarityDocs = 60
)

// Render writes the report page for r to w.
func Render(w io.Writer, r *export.Results) error {
	page := components.NewPage()
	page.PageTitle = "Topic cross-validation " + r.RunID
	page.AddCharts(dominantChart(r), coherenceChart(r))
	if len(r.Groups) > 0 {
		page.AddCharts(prevalenceChart(r))
	}
	if sim, err := similarityChart(r); err == nil {
		page.AddCharts(sim)
	} else {
		slog.Default().With("component", "report").Warn("similarity chart skipped", "error", err)
	}
	return page.Render(w)
}

// WriteFile renders the report to path, creating parent directories.
func WriteFile(path string, r *export.Results) error {
	var buf bytes.Buffer
	if err := Render(&buf, r); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}

func globalOpts(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: true}),
	}
}

func topicLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = "T" + strconv.Itoa(i)
	}
	return labels
}

func dominantChart(r *export.Results) *charts.Bar {
	counts := aggregate.DominantCounts(r.Documents)
	data := make([]opts.BarData, len(counts))
	for i, n := range counts {
		data[i] = opts.BarData{Value: n}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(globalOpts("Dominant topics", fmt.Sprintf("%d documents", len(r.Order)))...)
	bar.SetXAxis(topicLabels(len(counts))).AddSeries("documents", data)
	return bar
}

func coherenceChart(r *export.Results) *charts.Line {
	var labels []string
	var data []opts.LineData
	for _, f := range r.Report.Folds {
		if f.Err != nil {
			continue
		}
		labels = append(labels, fmt.Sprintf("fold %d (K=%d)", f.Index, f.K))
		data = append(data, opts.LineData{Value: f.Coherence.Aggregate})
	}
	line := charts.NewLine()
	line.SetGlobalOptions(globalOpts("Held-out coherence", fmt.Sprintf("mean %.4f", r.Report.MeanCoherence))...)
	line.SetXAxis(labels).AddSeries("coherence", data)
	return line
}

func prevalenceChart(r *export.Results) *charts.HeatMap {
	rows := aggregate.Prevalence(r.Documents, r.Groups)
	var groups []string
	index := make(map[string]int)
	data := make([]opts.HeatMapData, 0, len(rows))
	for _, p := range rows {
		gi, ok := index[p.Group]
		if !ok {
			gi = len(groups)
			index[p.Group] = gi
			groups = append(groups, p.Group)
		}
		data = append(data, opts.HeatMapData{Value: [3]interface{}{p.TopicID, gi, p.MeanProbability}})
	}
	topics := topicLabels(aggregate.Width(r.Documents))
	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(append(globalOpts("Topic prevalence by group", ""),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: topics}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: groups}),
		charts.WithVisualMapOpts(opts.VisualMap{Calculable: true, Min: 0, Max: 1}),
	)...)
	hm.SetXAxis(topics).AddSeries("mean probability", data)
	return hm
}

func similarityChart(r *export.Results) (*charts.HeatMap, error) {
	ids := r.Order
	if len(ids) > MaxSimilarityDocs {
		ids = ids[:MaxSimilarityDocs]
	}
	sim, err := aggregate.Similarity(r.Documents, ids)
	if err != nil {
		return nil, err
	}
	data := make([]opts.HeatMapData, 0, len(ids)*len(ids))
	for i := range ids {
		for j := range ids {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{i, j, sim.At(i, j)}})
		}
	}
	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(append(globalOpts("Document similarity", fmt.Sprintf("cosine, first %d documents", len(ids))),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: ids}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ids}),
		charts.WithVisualMapOpts(opts.VisualMap{Calculable: true, Min: 0, Max: 1}),
	)...)
	hm.SetXAxis(ids).AddSeries("cosine", data)
	return hm, nil
}
