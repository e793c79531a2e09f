package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"stupidisco/internal/logging"
)

// Recorder implements ports.Metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	RecordingsStarted  prometheus.Counter
	RecordingsFinished *prometheus.CounterVec
	TranscriptSegments prometheus.Histogram

	AnswersFinished    *prometheus.CounterVec
	FirstTokenLatency  prometheus.Histogram
	AnswerLatency      prometheus.Histogram
	AudioBytesStreamed prometheus.Counter
	AudioChunksSent    prometheus.Counter
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,

		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "stupidisco_recordings_started_total",
			Help: "Total number of recordings started",
		}),
		RecordingsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stupidisco_recordings_finished_total",
			Help: "Total number of recordings finished by outcome",
		}, []string{"outcome"}),
		TranscriptSegments: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stupidisco_transcript_segments",
			Help:    "Confirmed transcript segments per recording",
			Buckets: prometheus.LinearBuckets(1, 2, 8),
		}),

		AnswersFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stupidisco_answers_finished_total",
			Help: "Total number of answer generations by outcome",
		}, []string{"outcome"}),
		FirstTokenLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stupidisco_answer_first_token_seconds",
			Help:    "Time from stop to the first answer chunk",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		AnswerLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stupidisco_answer_total_seconds",
			Help:    "Time from stop to the complete answer",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		AudioBytesStreamed: factory.NewCounter(prometheus.CounterOpts{
			Name: "stupidisco_audio_bytes_streamed_total",
			Help: "PCM bytes forwarded to the transcription service",
		}),
		AudioChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "stupidisco_audio_chunks_sent_total",
			Help: "Audio chunks forwarded to the transcription service",
		}),
	}
}

func (r *Recorder) RecordingStarted() {
	r.RecordingsStarted.Inc()
}

func (r *Recorder) RecordingFinished(outcome string, segments int) {
	r.RecordingsFinished.WithLabelValues(outcome).Inc()
	if segments > 0 {
		r.TranscriptSegments.Observe(float64(segments))
	}
}

func (r *Recorder) AnswerFinished(outcome string, firstToken time.Duration, total time.Duration) {
	r.AnswersFinished.WithLabelValues(outcome).Inc()
	if firstToken > 0 {
		r.FirstTokenLatency.Observe(firstToken.Seconds())
	}
	if outcome == "completed" {
		r.AnswerLatency.Observe(total.Seconds())
	}
}

func (r *Recorder) AudioChunkSent(bytes int) {
	r.AudioChunksSent.Inc()
	r.AudioBytesStreamed.Add(float64(bytes))
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// disables the listener.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	log := logging.For("metrics")

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go serve(server, listener, log)
	log.Info().Str("addr", listener.Addr().String()).Msg("metrics listener started")
	return nil
}

func serve(server *http.Server, listener net.Listener, log zerolog.Logger) {
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("metrics listener stopped")
	}
}
