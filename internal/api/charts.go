package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/meshpilot/internal/db"
)

// loadEstimates fetches the rows a chart draws, writing an error response
// and returning ok=false when there is nothing to draw.
func (s *Server) loadEstimates(w http.ResponseWriter, r *http.Request) ([]db.EstimateRow, bool) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return nil, false
	}
	if s.db == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no flight database configured")
		return nil, false
	}
	limit, err := limitParam(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	rows, err := s.db.RecentEstimates(s.sessionParam(r), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load estimates: %v", err))
		return nil, false
	}
	if len(rows) == 0 {
		writeJSONError(w, http.StatusNotFound, "no position estimates recorded")
		return nil, false
	}
	return rows, true
}

// handleAltitudeChart renders the estimated altitude over time as an HTML
// line chart.
func (s *Server) handleAltitudeChart(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.loadEstimates(w, r)
	if !ok {
		return
	}

	x := make([]string, 0, len(rows))
	z := make([]opts.LineData, 0, len(rows))
	for _, row := range rows {
		x = append(x, row.At.Format("15:04:05.000"))
		z = append(z, opts.LineData{Value: row.Position.Z})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Altitude", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Estimated altitude",
			Subtitle: fmt.Sprintf("session=%s points=%d until %s", s.sessionParam(r), len(rows), rows[len(rows)-1].At.Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Z (m)"}),
	)
	line.SetXAxis(x).AddSeries("z", z)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleTrackPlot renders the XY ground track as a PNG. The latest estimate
// is marked.
func (s *Server) handleTrackPlot(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.loadEstimates(w, r)
	if !ok {
		return
	}

	p := plot.New()
	p.Title.Text = "Ground track"
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	pts := make(plotter.XYs, len(rows))
	for i, row := range rows {
		pts[i] = plotter.XY{X: row.Position.X, Y: row.Position.Y}
	}
	track, err := plotter.NewLine(pts)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build track: %v", err))
		return
	}
	track.Width = vg.Points(1)
	last, err := plotter.NewScatter(pts[len(pts)-1:])
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build marker: %v", err))
		return
	}
	last.GlyphStyle.Radius = vg.Points(3)
	p.Add(plotter.NewGrid(), track, last)

	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to encode plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
