package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CommandMetrics содержит метрики командного конвейера.
type CommandMetrics struct {
	// Результаты команд по меткам command/result
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec

	conflicts *prometheus.CounterVec
	events    *prometheus.CounterVec

	// События, сохранённые в хранилище, но не переданные публикатору
	publishFailures prometheus.Counter
}

// NewCommandMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCommandMetrics() *CommandMetrics {
	return NewCommandMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCommandMetricsWithRegisterer нужен тестам с изолированным реестром.
func NewCommandMetricsWithRegisterer(registerer prometheus.Registerer) *CommandMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CommandMetrics{
		commands: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderstock_commands_total",
			Help: "Total number of executed commands grouped by command and result",
		}, []string{"command", "result"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orderstock_command_duration_seconds",
			Help:    "Duration of command execution in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"command"}),
		conflicts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderstock_concurrency_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts per aggregate type",
		}, []string{"aggregate"}),
		events: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderstock_domain_events_total",
			Help: "Total number of published domain events per event type",
		}, []string{"event_type"}),
		publishFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstock_event_publish_failures_total",
			Help: "Total number of committed commands whose events failed to publish",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCommand фиксирует результат и длительность команды.
func (m *CommandMetrics) RecordCommand(command, result string, duration time.Duration) {
	m.commands.WithLabelValues(command, result).Inc()
	m.duration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordConflict увеличивает счётчик конфликтов версий.
func (m *CommandMetrics) RecordConflict(aggregate string) {
	m.conflicts.WithLabelValues(aggregate).Inc()
}

// RecordEvent увеличивает счётчик опубликованных событий.
func (m *CommandMetrics) RecordEvent(eventType string) {
	m.events.WithLabelValues(eventType).Inc()
}

// RecordPublishFailure фиксирует сбой публикации после коммита.
func (m *CommandMetrics) RecordPublishFailure() {
	m.publishFailures.Inc()
}
