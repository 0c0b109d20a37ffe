package metrics

import (
	"sort"
	"strings"
	"sync"
)

// counterVec is a set of integer counters keyed by label values.
type counterVec struct {
	mu     sync.Mutex
	names  []string
	values map[string]*counterEntry
}

type counterEntry struct {
	labels map[string]string
	value  int64
}

func newCounterVec(labelNames ...string) *counterVec {
	return &counterVec{names: labelNames, values: make(map[string]*counterEntry)}
}

// inc adds one to the counter for the given label values, which must be in
// the order the vec was declared with.
func (cv *counterVec) inc(values ...string) {
	cv.add(1, values...)
}

func (cv *counterVec) add(delta int64, values ...string) {
	key := strings.Join(values, "\x00")
	cv.mu.Lock()
	defer cv.mu.Unlock()
	e, ok := cv.values[key]
	if !ok {
		e = &counterEntry{labels: zipLabels(cv.names, values)}
		cv.values[key] = e
	}
	e.value += delta
}

// get returns the counter for the given label values.
func (cv *counterVec) get(values ...string) int64 {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if e, ok := cv.values[strings.Join(values, "\x00")]; ok {
		return e.value
	}
	return 0
}

func (cv *counterVec) snapshot() []counterEntry {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	keys := make([]string, 0, len(cv.values))
	for k := range cv.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]counterEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, *cv.values[k])
	}
	return out
}

// histogramVec is a set of fixed-bucket histograms keyed by label values.
type histogramVec struct {
	mu      sync.Mutex
	names   []string
	buckets []float64
	values  map[string]*histogram
}

type histogram struct {
	labels  map[string]string
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

func newHistogramVec(buckets []float64, labelNames ...string) *histogramVec {
	return &histogramVec{names: labelNames, buckets: buckets, values: make(map[string]*histogram)}
}

func (hv *histogramVec) observe(v float64, values ...string) {
	key := strings.Join(values, "\x00")
	hv.mu.Lock()
	defer hv.mu.Unlock()
	h, ok := hv.values[key]
	if !ok {
		h = &histogram{
			labels:  zipLabels(hv.names, values),
			buckets: hv.buckets,
			counts:  make([]int64, len(hv.buckets)),
		}
		hv.values[key] = h
	}
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
			break
		}
	}
	h.sum += v
	h.count++
}

func (hv *histogramVec) snapshot() []histogram {
	hv.mu.Lock()
	defer hv.mu.Unlock()
	keys := make([]string, 0, len(hv.values))
	for k := range hv.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]histogram, 0, len(keys))
	for _, k := range keys {
		h := *hv.values[k]
		h.counts = append([]int64(nil), h.counts...)
		out = append(out, h)
	}
	return out
}

func zipLabels(names, values []string) map[string]string {
	labels := make(map[string]string, len(names))
	for i, n := range names {
		if i < len(values) {
			labels[n] = values[i]
		}
	}
	return labels
}
