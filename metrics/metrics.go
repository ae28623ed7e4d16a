// Package metrics exposes Prometheus collectors for PKI operations and the
// tool invocations behind them.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmcleod/ironpki/pki"
)

// Collector implements pki.Observer.
type Collector struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Commands          *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
	BackgroundErrors  *prometheus.CounterVec
}

var _ pki.Observer = (*Collector)(nil)

// New creates an unregistered Collector.
func New() *Collector {
	return &Collector{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ironpki_operations_total",
			Help: "PKI operations by operation and result kind",
		}, []string{"operation", "result"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ironpki_operation_duration_seconds",
			Help:    "Wall time of PKI operations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"operation"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ironpki_commands_total",
			Help: "Tool invocations by command and exit code",
		}, []string{"command", "exit_code"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ironpki_command_duration_seconds",
			Help:    "Wall time of tool invocations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"command"}),
		BackgroundErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ironpki_background_task_failures_total",
			Help: "Failures of detached background tasks",
		}, []string{"task"}),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.Operations, c.OperationDuration, c.Commands, c.CommandDuration, c.BackgroundErrors,
	}
}

// Register registers the collectors on reg (or the default registerer if
// nil). Already-registered collectors are not an error.
func (c *Collector) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, col := range c.collectors() {
		if err := reg.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

func (c *Collector) ObserveCommand(name string, exitCode int, elapsed time.Duration) {
	c.Commands.WithLabelValues(name, strconv.Itoa(exitCode)).Inc()
	c.CommandDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveOperation(op pki.Operation, err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = pki.ErrorKind(err)
	}
	c.Operations.WithLabelValues(string(op), result).Inc()
	c.OperationDuration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

// Diagnostic counts a background task failure; it matches pki.DiagnosticFunc.
func (c *Collector) Diagnostic(task string, _ error) {
	c.BackgroundErrors.WithLabelValues(task).Inc()
}
