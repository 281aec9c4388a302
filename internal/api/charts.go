package api

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/position.report/internal/db"
	"github.com/banshee-data/position.report/internal/httputil"
)

const defaultChartPoints = 2000

// AttachAdminRoutes registers the debug charts under /debug/.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("location/track", "Recent samples on a lat/lon scatter", s.handleTrackChart)
	debug.HandleFunc("location/accuracy.png", "Horizontal accuracy over time", s.handleAccuracyPlot)
}

func (s *Server) chartSamples(r *http.Request) ([]db.StoredSample, error) {
	limit := defaultChartPoints
	if v := r.URL.Query().Get("max_points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50000 {
			return nil, fmt.Errorf("invalid 'max_points' parameter")
		}
		limit = n
	}
	return s.db.RecentSamples(r.Context(), db.SampleQuery{
		SessionID: r.URL.Query().Get("session"),
		Limit:     limit,
	})
}

// handleTrackChart renders recent fixes with go-echarts, colored by accuracy.
func (s *Server) handleTrackChart(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "sample storage disabled")
		return
	}
	rows, err := s.chartSamples(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	data := make([]opts.ScatterData, 0, len(rows))
	maxAcc := 1.0
	for _, row := range rows {
		if row.HorizontalAccuracy <= 0 {
			continue
		}
		if row.HorizontalAccuracy > maxAcc {
			maxAcc = row.HorizontalAccuracy
		}
		data = append(data, opts.ScatterData{
			Value: []interface{}{row.Longitude, row.Latitude, row.HorizontalAccuracy},
			Name:  row.Timestamp.Format(time.RFC3339),
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Position Track", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Recent Fixes", Subtitle: fmt.Sprintf("points=%d", len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Longitude", NameLocation: "middle", NameGap: 25, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Latitude", NameLocation: "middle", NameGap: 40, Scale: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxAcc),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#35b779", "#fde725", "#ff5252"}},
		}),
	)
	scatter.AddSeries("fixes", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleAccuracyPlot renders the accuracy radius of recent fixes as a PNG
// line plot with gonum/plot.
func (s *Server) handleAccuracyPlot(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.ServiceUnavailable(w, "sample storage disabled")
		return
	}
	rows, err := s.chartSamples(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	pts := make(plotter.XYs, 0, len(rows))
	// rows are newest first; plot oldest first
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].HorizontalAccuracy <= 0 {
			continue
		}
		pts = append(pts, plotter.XY{
			X: float64(rows[i].Timestamp.Unix()),
			Y: rows[i].HorizontalAccuracy,
		})
	}

	p := plot.New()
	p.Title.Text = "Horizontal Accuracy"
	p.X.Label.Text = "Time (UTC)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02\n15:04"}
	p.Y.Label.Text = "Radius (m)"
	p.Add(plotter.NewGrid())

	if len(pts) == 0 {
		now := float64(time.Now().Unix())
		p.X.Min, p.X.Max = now-3600, now
		p.Y.Min, p.Y.Max = 0, 1
	} else {
		line, err := plotter.NewLine(pts)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		line.Color = color.RGBA{R: 0x1f, G: 0x9e, B: 0x89, A: 0xff}
		line.Width = vg.Points(1)
		p.Add(line)
	}

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}
