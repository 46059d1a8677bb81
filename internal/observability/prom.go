package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec

	// Auth flow
	AuthOutcomes  *prometheus.CounterVec
	SessionsAlive prometheus.Gauge

	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Session store (redis)
	SessionOpDuration *prometheus.HistogramVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "authgate",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "authgate",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				// Sane initial defaults
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "authgate",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		AuthOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "authgate",
				Subsystem: "auth",
				Name:      "outcomes_total",
				Help:      "Auth operation outcomes by op and result.",
			},
			[]string{"op", "result"}, // result=ok|unauthorized|invalid|error
		),
		SessionsAlive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "authgate",
				Subsystem: "auth",
				Name:      "sessions_alive",
				Help:      "Sessions created minus sessions revoked (per process).",
			},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "authgate",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "authgate",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		SessionOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "authgate",
				Subsystem: "sessions",
				Name:      "op_duration_seconds",
				Help:      "Session store operation latency by op and status.",
				Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"op", "status"},
		),
	}
	reg.MustRegister(p.RequestsTotal, p.RequestsDuration, p.InFlight, p.AuthOutcomes, p.SessionsAlive, p.DbQueryDuration, p.DbErrorsTotal, p.SessionOpDuration)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}

func (p *Prom) CountAuth(op, result string) {
	p.AuthOutcomes.WithLabelValues(op, result).Inc()
}

// ObserveSession wraps a session store call and records latency + status.
func (p *Prom) ObserveSession(op string, fn func() error) error {
	start := time.Now()
	err := fn()

	status := "ok"

	if err != nil {
		status = "error"
	}
	p.SessionOpDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

// ObserveDB wraps a users-repo query with latency and error class.
func (p *Prom) ObserveDB(op string, fn func() error) error {
	start := time.Now()
	err := fn()

	status := "ok"

	if err != nil {
		status = "error"
		p.DbErrorsTotal.WithLabelValues(op, classifyDBErr(err)).Inc()
	}
	p.DbQueryDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

// The users repo runs an upsert and a primary-key lookup, so the
// classes worth separating are constraint hits, cancelled contexts,
// and connectivity.
func classifyDBErr(err error) string {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return "unique_violation"
		case "57014":
			return "canceled"
		}

		return "pg_" + pgErr.Code
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "canceled"
	}

	return "connection"
}
