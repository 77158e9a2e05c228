// Package report renders sort diagnostics as interactive HTML charts.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/gogpu/radixsort/kernel"
)

// PageTitle is the HTML title of the histogram page.
const PageTitle = "Radix digit histogram"

// RenderHistogram writes a pass x digit heatmap of the per-pass digit
// counts to w.
func RenderHistogram(w io.Writer, rows [][kernel.RadixSize]uint32) error {
	if len(rows) == 0 {
		return fmt.Errorf("report: no histogram rows")
	}

	var data []opts.HeatMapData
	var maxCount uint32
	for pass, row := range rows {
		for digit, count := range row {
			maxCount = max(maxCount, count)
			if count == 0 {
				continue
			}
			data = append(data, opts.HeatMapData{
				Value: [3]interface{}{digit, pass, count},
				Name:  fmt.Sprintf("pass %d digit 0x%02x", pass, digit),
			})
		}
	}

	passes := make([]string, len(rows))
	for i := range passes {
		passes[i] = fmt.Sprintf("pass %d (bits %d-%d)", i, i*kernel.RadixLog2, (i+1)*kernel.RadixLog2-1)
	}

	heatmap := charts.NewHeatMap()
	heatmap.SetGlobalOptions(
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(false),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       PageTitle,
			Width:           "180vh",
			Height:          "60vh",
			Theme:           types.ThemeVintage,
			BackgroundColor: "transparent",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Keys per digit and pass",
			Left:  "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Trigger: "item",
			Formatter: opts.FuncOpts(`function (params) {
		return params.name + '<br />Keys: ' + params.value[2];
	}`),
		}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show: opts.Bool(true),
			Min:  0,
			Max:  float32(maxCount),
			InRange: &opts.VisualMapInRange{
				Color: []string{"#ffff8f", "#ff0000", "#000000"},
			},
			Orient: "vertical",
			Right:  "5%",
			Top:    "middle",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:        "Digit",
			Type:        "category",
			Data:        digitLabels(),
			SplitNumber: 16,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "Pass",
			Type: "category",
			Data: passes,
		}),
	)
	heatmap.AddSeries("Histogram", data)

	page := components.NewPage()
	page.SetPageTitle(PageTitle)
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(heatmap)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("report: rendering heatmap: %w", err)
	}
	return nil
}

// WriteHistogram renders the heatmap into the file at path.
func WriteHistogram(path string, rows [][kernel.RadixSize]uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: could not create heatmap file %s: %w", path, err)
	}
	if err := RenderHistogram(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func digitLabels() []string {
	labels := make([]string, kernel.RadixSize)
	for i := range labels {
		labels[i] = fmt.Sprintf("%02x", i)
	}
	return labels
}
