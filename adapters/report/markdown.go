package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"morphocv/internal/metrics"
)

// Markdown renders the run summary: one table per comparison group and the
// default predictor comparison
func Markdown(r *Report, summary []SummaryRow) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Comparison %s\n\n", r.RunID)
	fmt.Fprintf(&b, "Created %s. Significance capped at %g.\n\n", r.CreatedAt.UTC().Format(time.RFC3339), r.capLimit())

	for _, group := range r.Groups() {
		fmt.Fprintf(&b, "## %s\n\n", group)
		b.WriteString("| experiment | iterations | mean Acc | median Acc | std Acc | mean MI | mean Sig |\n")
		b.WriteString("|---|---:|---:|---:|---:|---:|---:|\n")
		for _, s := range summary {
			if s.Group != group {
				continue
			}
			name := s.Experiment
			if s.Baseline {
				name += " (baseline)"
			}
			fmt.Fprintf(&b, "| %s | %d | %.4f | %.4f | %.4f | %.4f | %.4f |\n",
				name, s.Iterations, s.MeanAccuracy, s.MedianAcc, s.StdAccuracy, s.MeanMI, s.MeanSig)
		}
		b.WriteString("\n")
	}

	if len(r.Default) > 0 {
		b.WriteString("## Default predictor\n\n")
		b.WriteString("| experiment | iteration | default | default Acc | Acc | Sig |\n")
		b.WriteString("|---|---:|---|---:|---:|---:|\n")
		for _, d := range r.Default {
			fmt.Fprintf(&b, "| %s | %d | %s | %.4f | %.4f | %.4f |\n",
				d.Experiment, d.Iteration, r.classLabel(d.DefaultLabel), d.DefaultAccuracy, d.Accuracy, r.Sig(d.Significance))
		}
		b.WriteString("\n")
	}
	return b.Bytes()
}

// RenderHTML converts Markdown to a standalone HTML page
func RenderHTML(md []byte, title string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: title,
	})
	return markdown.ToHTML(md, p, renderer)
}

func (r *Report) capLimit() float64 {
	if r.MaxSignificance <= 0 {
		return metrics.DefaultMaxSignificance
	}
	return r.MaxSignificance
}
