package observe

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
)

// LatencyBuckets are the processing latency histogram buckets, in seconds.
var LatencyBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1,
}

type counterKey struct {
	name     Counter
	category detection.Category
}

// Registry is the in-process Recorder. Counters are labelled by category.
type Registry struct {
	namespace string

	mu       sync.RWMutex
	counters map[counterKey]*atomic.Uint64
	gauges   map[Gauge]*atomic.Int64

	histMu sync.Mutex
	counts []uint64
	sum    float64
	count  uint64
}

// NewRegistry creates an empty registry. namespace prefixes every metric name.
func NewRegistry(namespace string) *Registry {
	return &Registry{
		namespace: namespace,
		counters:  make(map[counterKey]*atomic.Uint64),
		gauges:    make(map[Gauge]*atomic.Int64),
		counts:    make([]uint64, len(LatencyBuckets)+1),
	}
}

// Inc increments counter c for category.
func (r *Registry) Inc(c Counter, category detection.Category) {
	k := counterKey{name: c, category: category}
	r.mu.RLock()
	v, ok := r.counters[k]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		if v, ok = r.counters[k]; !ok {
			v = new(atomic.Uint64)
			r.counters[k] = v
		}
		r.mu.Unlock()
	}
	v.Add(1)
}

// Set stores gauge g.
func (r *Registry) Set(g Gauge, value int64) {
	r.mu.RLock()
	v, ok := r.gauges[g]
	r.mu.RUnlock()
	if !ok {
		r.mu.Lock()
		if v, ok = r.gauges[g]; !ok {
			v = new(atomic.Int64)
			r.gauges[g] = v
		}
		r.mu.Unlock()
	}
	v.Store(value)
}

// ObserveLatency records one event's processing time.
func (r *Registry) ObserveLatency(d time.Duration) {
	s := d.Seconds()
	r.histMu.Lock()
	defer r.histMu.Unlock()
	idx := sort.SearchFloat64s(LatencyBuckets, s)
	r.counts[idx]++
	r.sum += s
	r.count++
}

// Count returns counter c for category.
func (r *Registry) Count(c Counter, category detection.Category) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.counters[counterKey{name: c, category: category}]; ok {
		return v.Load()
	}
	return 0
}

// Total returns counter c summed over every category.
func (r *Registry) Total(c Counter) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total uint64
	for k, v := range r.counters {
		if k.name == c {
			total += v.Load()
		}
	}
	return total
}

// GaugeValue returns the current value of g.
func (r *Registry) GaugeValue(g Gauge) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.gauges[g]; ok {
		return v.Load()
	}
	return 0
}

func (r *Registry) fullName(name string) string {
	if r.namespace == "" {
		return name
	}
	return r.namespace + "_" + name
}

// WritePrometheus writes every metric in Prometheus text format, sorted by
// name and label so output is stable.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	keys := make([]counterKey, 0, len(r.counters))
	for k := range r.counters {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].category < keys[j].category
	})
	gauges := make([]Gauge, 0, len(r.gauges))
	for g := range r.gauges {
		gauges = append(gauges, g)
	}
	sort.Slice(gauges, func(i, j int) bool { return gauges[i] < gauges[j] })

	var b strings.Builder
	var last Counter
	for _, k := range keys {
		name := r.fullName(string(k.name))
		if k.name != last {
			fmt.Fprintf(&b, "# HELP %s %s\n", name, counterHelp[k.name])
			fmt.Fprintf(&b, "# TYPE %s counter\n", name)
			last = k.name
		}
		if k.category == "" {
			fmt.Fprintf(&b, "%s %d\n", name, r.counters[k].Load())
		} else {
			fmt.Fprintf(&b, "%s{category=%q} %d\n", name, string(k.category), r.counters[k].Load())
		}
	}
	for _, g := range gauges {
		name := r.fullName(string(g))
		fmt.Fprintf(&b, "# HELP %s %s\n", name, gaugeHelp[g])
		fmt.Fprintf(&b, "# TYPE %s gauge\n", name)
		fmt.Fprintf(&b, "%s %d\n", name, r.gauges[g].Load())
	}
	r.mu.RUnlock()

	r.histMu.Lock()
	name := r.fullName("processing_seconds")
	fmt.Fprintf(&b, "# HELP %s Time to process one pipeline event.\n", name)
	fmt.Fprintf(&b, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bucket := range LatencyBuckets {
		cumulative += r.counts[i]
		fmt.Fprintf(&b, "%s_bucket{le=\"%g\"} %d\n", name, bucket, cumulative)
	}
	cumulative += r.counts[len(LatencyBuckets)]
	fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"} %d\n", name, cumulative)
	fmt.Fprintf(&b, "%s_sum %f\n", name, r.sum)
	fmt.Fprintf(&b, "%s_count %d\n", name, r.count)
	r.histMu.Unlock()

	_, err := io.WriteString(w, b.String())
	return err
}

// HTTPHandler serves the registry in Prometheus text format.
func (r *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		if err := r.WritePrometheus(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

var _ Recorder = (*Registry)(nil)
