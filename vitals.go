package trackbridge

import (
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Web vitals metric names.
const (
	MetricCLS  = "CLS"
	MetricFCP  = "FCP"
	MetricFID  = "FID"
	MetricINP  = "INP"
	MetricLCP  = "LCP"
	MetricTTFB = "TTFB"
)

// Metric ratings.
const (
	RatingGood             = "good"
	RatingNeedsImprovement = "needs-improvement"
	RatingPoor             = "poor"
)

// thresholds are the upper bounds of "good" and "needs-improvement".
var thresholds = map[string][2]float64{
	MetricCLS:  {0.1, 0.25},
	MetricFCP:  {1800, 3000},
	MetricFID:  {100, 300},
	MetricINP:  {200, 500},
	MetricLCP:  {2500, 4000},
	MetricTTFB: {800, 1800},
}

// Rate classifies value for the named metric using the standard web-vitals
// thresholds. Unknown metrics return an empty rating.
func Rate(metric string, value float64) string {
	t, ok := thresholds[strings.ToUpper(metric)]
	if !ok {
		return ""
	}
	switch {
	case value <= t[0]:
		return RatingGood
	case value <= t[1]:
		return RatingNeedsImprovement
	default:
		return RatingPoor
	}
}

// Metric is a single web-vitals measurement.
type Metric struct {
	// Name is the metric name, e.g. [MetricLCP].
	Name string

	// Value is the measured value (milliseconds, or unitless for CLS).
	Value float64

	// Rating is derived with [Rate] when empty.
	Rating string

	// Delta is the change since the last report of this metric, if known.
	Delta *float64

	// ID uniquely identifies the metric instance on the page.
	ID string

	// NavigationType is e.g. "navigate", "reload" or "back-forward".
	NavigationType string

	// Attribution carries library-specific debugging detail.
	Attribution map[string]any

	// URL is the page URL the metric was measured on.
	URL string

	// Path is the page path. Derived from URL when empty.
	Path string
}

// MetricSource is an optional metrics library that reports measurements
// as they become available.
type MetricSource interface {
	OnMetric(func(Metric))
}

// vitalsRequest is the body of POST {host}/api/collect/vitals.
type vitalsRequest struct {
	Website        string         `json:"website"`
	Metric         string         `json:"metric"`
	Value          float64        `json:"value"`
	Rating         string         `json:"rating"`
	Delta          *float64       `json:"delta,omitempty"`
	ID             string         `json:"id,omitempty"`
	NavigationType string         `json:"navigationType,omitempty"`
	Attribution    map[string]any `json:"attribution,omitempty"`
	URL            string         `json:"url"`
	Path           string         `json:"path"`
}

// VitalsTracker posts web-vitals measurements straight to the collector,
// bypassing the tracker bridge.
//
// Measurements arrive either from a [MetricSource] attached with
// [VitalsTracker.Attach] or manually through [VitalsTracker.Report].
// Delivery is fire-and-forget.
type VitalsTracker struct {
	poster *poster
	logger *slog.Logger

	attachOnce sync.Once
}

func newVitalsTracker(p *poster) *VitalsTracker {
	return &VitalsTracker{poster: p, logger: p.logger}
}

// Attach subscribes to src. Only the first call per tracker subscribes;
// later calls return false. A nil src is a no-op that returns false, leaving
// the tracker in manual mode.
func (v *VitalsTracker) Attach(src MetricSource) bool {
	if v == nil || src == nil {
		return false
	}
	attached := false
	v.attachOnce.Do(func() {
		attached = true
		defer func() {
			if r := recover(); r != nil {
				v.logger.Error("metric source panicked on subscribe",
					"correlation_id", uuid.NewString(),
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
			}
		}()
		src.OnMetric(v.Report)
	})
	return attached
}

// Report sends one measurement. Metrics without a name are ignored.
func (v *VitalsTracker) Report(m Metric) {
	if v == nil || m.Name == "" {
		return
	}
	website := v.poster.config().WebsiteID()
	if website == "" {
		return
	}
	if m.Rating == "" {
		m.Rating = Rate(m.Name, m.Value)
	}
	if m.Path == "" && m.URL != "" {
		if u, err := url.Parse(m.URL); err == nil {
			m.Path = u.Path
		}
	}
	if m.Path == "" {
		m.Path = "/"
	}

	v.poster.post(VitalsPath, vitalsRequest{
		Website:        website,
		Metric:         m.Name,
		Value:          m.Value,
		Rating:         m.Rating,
		Delta:          m.Delta,
		ID:             m.ID,
		NavigationType: m.NavigationType,
		Attribution:    m.Attribution,
		URL:            m.URL,
		Path:           m.Path,
	})
}
