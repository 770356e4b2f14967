package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/rickgao/loadtest-dash/internal/connection"
	"github.com/rickgao/loadtest-dash/internal/model"
	"github.com/rickgao/loadtest-dash/internal/protocol"
	"github.com/rickgao/loadtest-dash/internal/router"
)

// printer writes one line per frame. Safe for concurrent use.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool

	stateC  *color.Color
	pointC  *color.Color
	updateC *color.Color
	errC    *color.Color
	metricC *color.Color
	rawC    *color.Color
	dimC    *color.Color
}

func newPrinter(out io.Writer, verbose, noColor bool) *printer {
	p := &printer{
		out:     out,
		verbose: verbose,
		stateC:  color.New(color.FgMagenta, color.Bold),
		pointC:  color.New(color.FgCyan),
		updateC: color.New(color.FgGreen),
		errC:    color.New(color.FgRed, color.Bold),
		metricC: color.New(color.FgYellow),
		rawC:    color.New(color.FgBlue),
		dimC:    color.New(color.FgHiBlack),
	}
	if noColor {
		for _, c := range []*color.Color{p.stateC, p.pointC, p.updateC, p.errC, p.metricC, p.rawC, p.dimC} {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) line(c *color.Color, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(p.out, "%s %s\n", p.dimC.Sprint(ts), c.Sprintf(format, args...))
}

func (p *printer) json(tag string, c *color.Color, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		p.line(p.errC, "[%s] encode failed: %v", tag, err)
		return
	}
	p.line(c, "[%s] %s", tag, data)
}

func (p *printer) info(format string, args ...any) { p.line(p.dimC, format, args...) }
func (p *printer) warn(format string, args ...any) { p.line(p.errC, format, args...) }

func (p *printer) state(s connection.State) {
	p.line(p.stateC, "[STATE] %s", strings.ToUpper(s.String()))
}

func (p *printer) point(msg router.PointMsg) {
	tag := "POINT"
	if msg.History {
		tag = "HISTORY"
	}
	if p.verbose {
		p.json(tag, p.pointC, msg.Point)
		return
	}
	pt := msg.Point
	p.line(p.pointC, "[%s] t=%s rps=%.1f avg_rt=%.1fms err=%.2f%%",
		tag, time.UnixMilli(pt.Timestamp).Format("15:04:05"),
		pt.RequestsPerSecond, pt.AverageResponseTime, pt.ErrorRate)
}

func (p *printer) update(msg router.UpdateMsg) {
	u := msg.Update
	if p.verbose {
		p.json("UPDATE", p.updateC, u)
		return
	}

	c := p.updateC
	if u.Status == model.StatusError {
		c = p.errC
	}
	line := fmt.Sprintf("[UPDATE] id=%s type=%s status=%s progress=%.0f%%", u.ID, u.TestType, u.Status, u.Progress)
	if u.Metrics != nil {
		line += fmt.Sprintf(" done=%d/%d codes=%s",
			u.Metrics.RequestsCompleted, u.Metrics.TotalRequests, formatCodes(u.Metrics.StatusCodes))
	}
	if u.Error != "" {
		line += " error=" + u.Error
	}
	p.line(c, "%s", line)
}

func (p *printer) metrics(m model.TestMetrics) {
	if p.verbose {
		p.json("METRICS", p.metricC, m)
		return
	}
	p.line(p.metricC, "[METRICS] done=%d/%d rps=%.1f avg_rt=%.1fms min=%.1f max=%.1f err=%.2f%%",
		m.RequestsCompleted, m.TotalRequests, m.RequestsPerSecond,
		m.AverageResponseTime, m.MinResponseTime, m.MaxResponseTime, m.ErrorRate)
}

func (p *printer) raw(msg protocol.Message) {
	p.line(p.rawC, "[%s] %s", strings.ToUpper(msg.Type), string(msg.Data))
}

// formatCodes renders status codes in ascending order, e.g. "200:980,404:10".
func formatCodes(codes map[int]int64) string {
	keys := make([]int, 0, len(codes))
	for k := range codes {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%d:%d", k, codes[k])
	}
	return strings.Join(parts, ",")
}
