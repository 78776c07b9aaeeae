package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request metrics
	transcriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxscribe_transcriptions_total",
		Help: "Transcription requests by source and outcome",
	}, []string{"source", "outcome"})

	transcriptionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voxscribe_transcription_duration_seconds",
		Help:    "End-to-end transcription request latency in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"source"})

	activeRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxscribe_active_requests",
		Help: "Transcription requests currently in flight",
	})

	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxscribe_audio_bytes_total",
		Help: "Audio bytes written to temporary storage",
	}, []string{"source"})

	// Model cache metrics
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxscribe_model_cache_lookups_total",
		Help: "Model cache lookups by result",
	}, []string{"result"})

	modelLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxscribe_model_loads_total",
		Help: "Model constructions by model, device and status",
	}, []string{"model", "device", "status"})

	modelLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voxscribe_model_load_duration_seconds",
		Help:    "Model construction latency in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"model"})

	loadedModels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxscribe_loaded_models",
		Help: "Models resident in the cache",
	})
)

func RecordCacheHit() {
	cacheLookups.WithLabelValues("hit").Inc()
}

func RecordCacheMiss() {
	cacheLookups.WithLabelValues("miss").Inc()
}

func RecordModelLoad(model, device string, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	modelLoads.WithLabelValues(model, device, status).Inc()
	modelLoadDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

func SetLoadedModels(n int) {
	loadedModels.Set(float64(n))
}

// RequestStarted marks a request in flight and returns the matching completion func.
func RequestStarted() func() {
	activeRequests.Inc()
	return activeRequests.Dec
}

func RecordTranscription(source, outcome string, elapsed time.Duration) {
	transcriptions.WithLabelValues(source, outcome).Inc()
	transcriptionDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func RecordAudioBytes(source string, n int64) {
	if n > 0 {
		audioBytes.WithLabelValues(source).Add(float64(n))
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
