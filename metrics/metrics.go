// Package metrics exposes Prometheus metrics for the jog control loop.
//
// Exported series:
//
//	jog_ticks_total{outcome}              one increment per control tick
//	jog_ingest_total{source,result}       jog commands and joint feedback
//	jog_kinematics_seconds{op}            FK and IK call latency
//	jog_dispatch_total{controller,result} trajectories sent per controller
//	jog_goals_total{controller,result}    goal completions
//	jog_goals_active                      goals currently executing
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.viam.com/rdk/logging"
)

// Collector holds the jog metric vectors.
type Collector struct {
	ticks       *prometheus.CounterVec
	ingest      *prometheus.CounterVec
	kinematics  *prometheus.HistogramVec
	dispatches  *prometheus.CounterVec
	goals       *prometheus.CounterVec
	goalsActive prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jog_ticks_total",
			Help: "Control ticks by outcome",
		}, []string{"outcome"}),
		ingest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jog_ingest_total",
			Help: "Ingested messages by source and result",
		}, []string{"source", "result"}),
		kinematics: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jog_kinematics_seconds",
			Help:    "Kinematics solver call latency in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jog_dispatch_total",
			Help: "Trajectories dispatched by controller and result",
		}, []string{"controller", "result"}),
		goals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jog_goals_total",
			Help: "Finished trajectory goals by controller and result",
		}, []string{"controller", "result"}),
		goalsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jog_goals_active",
			Help: "Trajectory goals currently executing",
		}),
	}

	for _, m := range []prometheus.Collector{c.ticks, c.ingest, c.kinematics, c.dispatches, c.goals, c.goalsActive} {
		if err := reg.Register(m); err != nil {
			return nil, errors.Wrap(err, "registering jog metrics")
		}
	}
	return c, nil
}

// RecordTick counts one control tick.
func (c *Collector) RecordTick(outcome string) {
	if c == nil {
		return
	}
	c.ticks.WithLabelValues(outcome).Inc()
}

// RecordIngest counts one incoming message. source is "jog" or "joint_state".
func (c *Collector) RecordIngest(source string, accepted bool) {
	if c == nil {
		return
	}
	c.ingest.WithLabelValues(source, result(accepted, "accepted", "rejected")).Inc()
}

// ObserveKinematics records the latency of one solver call.
func (c *Collector) ObserveKinematics(op string, d time.Duration) {
	if c == nil {
		return
	}
	c.kinematics.WithLabelValues(op).Observe(d.Seconds())
}

// RecordDispatch counts one trajectory send to controller.
func (c *Collector) RecordDispatch(controller string, ok bool) {
	if c == nil {
		return
	}
	c.dispatches.WithLabelValues(controller, result(ok, "sent", "failed")).Inc()
}

// GoalStarted marks a goal as executing.
func (c *Collector) GoalStarted() {
	if c == nil {
		return
	}
	c.goalsActive.Inc()
}

// GoalFinished records the completion of a goal started with GoalStarted.
func (c *Collector) GoalFinished(controller string, succeeded bool) {
	if c == nil {
		return
	}
	c.goalsActive.Dec()
	c.goals.WithLabelValues(controller, result(succeeded, "succeeded", "failed")).Inc()
}

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// Handler serves the metrics in g. A nil g uses prometheus.DefaultGatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Server is a /metrics HTTP endpoint.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// StartServer listens on addr and serves /metrics in the background.
func StartServer(addr string, g prometheus.Gatherer, logger logging.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server stopped: %v", err)
		}
	}()
	logger.Infof("serving metrics on %s/metrics", ln.Addr())
	return s, nil
}

// Addr is the address the server is bound to.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close shuts the server down, waiting up to a second for open requests.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
