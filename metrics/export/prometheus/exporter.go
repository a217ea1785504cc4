package prometheus

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
)

// Source is one client scraped by the exporter. *goSession.Manager satisfies it.
type Source interface {
	ID() string
	State() goSession.State
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders any number of clients in Prometheus text exposition format. Every series
// carries a client label, so clients sharing one profile stay distinguishable.
type Exporter struct {
	mu      sync.RWMutex
	sources []Source
}

// NewExporter creates an exporter for sources. Nil sources are skipped.
func NewExporter(sources ...Source) *Exporter {
	e := &Exporter{}
	for _, s := range sources {
		e.Add(s)
	}
	return e
}

// Add starts exporting s, e.g. for a client opened after the exporter was mounted.
func (e *Exporter) Add(s Source) {
	if s == nil {
		return
	}
	e.mu.Lock()
	e.sources = append(e.sources, s)
	e.mu.Unlock()
}

// Handler serves the current metrics.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

type scrape struct {
	client   string
	state    goSession.State
	snapshot goSession.MetricsSnapshot
	dropped  uint64
}

// Render returns the current metrics of every source, grouped by metric family.
// With no sources it renders "".
func (e *Exporter) Render() string {
	if e == nil {
		return ""
	}
	e.mu.RLock()
	scrapes := make([]scrape, 0, len(e.sources))
	for _, s := range e.sources {
		scrapes = append(scrapes, scrape{
			client:   escapeLabel(s.ID()),
			state:    s.State(),
			snapshot: s.MetricsSnapshot(),
			dropped:  s.AuditDropped(),
		})
	}
	e.mu.RUnlock()
	if len(scrapes) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096 * len(scrapes))

	writeFamily(&b, internaldefs.StateName, internaldefs.StateHelp, "gauge")
	for _, sc := range scrapes {
		for _, st := range internaldefs.States {
			var v uint64
			if st == sc.state {
				v = 1
			}
			writeSample(&b, internaldefs.StateName, sc.client, internaldefs.StateLabel, st.String(), v)
		}
	}

	for _, def := range internaldefs.CounterDefs {
		writeFamily(&b, def.Name, def.Help, "counter")
		for _, sc := range scrapes {
			// A disabled Metrics has an empty snapshot: report nothing rather than zeros.
			if len(sc.snapshot.Counters) == 0 {
				continue
			}
			writeSample(&b, def.Name, sc.client, "", "", sc.snapshot.Counters[def.ID])
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		writeFamily(&b, def.Name, def.Help, "histogram")
		for _, sc := range scrapes {
			raw, ok := sc.snapshot.Histograms[def.ID]
			if !ok {
				continue
			}
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
			for i, le := range internaldefs.HistogramBounds {
				writeSample(&b, def.Name+"_bucket", sc.client, "le", le, cumulative[i])
			}
			writeSample(&b, def.Name+"_count", sc.client, "", "", cumulative[len(cumulative)-1])
			// Snapshots carry no sum.
			writeSample(&b, def.Name+"_sum", sc.client, "", "", 0)
		}
	}

	writeFamily(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	for _, sc := range scrapes {
		writeSample(&b, internaldefs.AuditDroppedName, sc.client, "", "", sc.dropped)
	}

	return b.String()
}

func writeFamily(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

// writeSample writes name{client="..."[,key="value"]} value. client and value must be escaped.
func writeSample(b *strings.Builder, name, client, key, value string, v uint64) {
	b.WriteString(name)
	b.WriteString(`{` + internaldefs.ClientLabel + `="`)
	b.WriteString(client)
	b.WriteByte('"')
	if key != "" {
		b.WriteByte(',')
		b.WriteString(key)
		b.WriteString(`="`)
		b.WriteString(value)
		b.WriteByte('"')
	}
	b.WriteString("} ")
	b.WriteString(strconv.FormatUint(v, 10))
	b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(v string) string {
	return labelEscaper.Replace(v)
}
