// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corda/corda-runtime-os-sub044/pkg/logger"
	"github.com/corda/corda-runtime-os-sub044/pkg/sentry"
)

const (
	// Component labels.
	ComponentCoordinator       = "coordinator"
	ComponentWorkerPool        = "worker_pool"
	ComponentComponent         = "component"
	ComponentConfigReadService = "config_read_service"
	ComponentConfigFeed        = "config_feed"

	// Event results.
	ResultHandled   = "handled"
	ResultUnhandled = "unhandled"
	ResultDropped   = "dropped"
)

var (
	namespace = "lifecycle"
	subsystem = "core"

	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	eventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_processed_total",
			Help:      "Events taken off a coordinator queue, by outcome",
		},
		[]string{"coordinator", "result"},
	)

	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batch_duration_seconds",
			Help:      "Time taken to process one batch of coordinator events",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"coordinator", "success"},
	)

	coordinatorStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "coordinator_status",
			Help:      "Current status of the coordinator (0=DOWN, 1=UP, 2=ERROR, -1=closed)",
		},
		[]string{"coordinator"},
	)

	registrationFlips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "registration_status_changes_total",
			Help:      "Aggregate status flips delivered to a following coordinator",
		},
		[]string{"coordinator", "status"},
	)

	activationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "activation_attempts_total",
			Help:      "Attempts to build a component's active implementation, by outcome",
		},
		[]string{"component", "result"},
	)

	starvationSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "worker_pool_starved_total_seconds",
			Help:      "Total seconds batches waited for a worker beyond the starvation threshold",
		},
	)
)

// DebugProvider exposes a JSON-serializable view of some part of the system
// under /debug/coordinators.
type DebugProvider interface {
	GetDebugInfo() interface{}
}

var debugRegistry struct {
	providers map[string]DebugProvider
	mu        sync.RWMutex
}

// RegisterDebugProvider registers a provider for the debug endpoint.
func RegisterDebugProvider(name string, provider DebugProvider) {
	debugRegistry.mu.Lock()
	defer debugRegistry.mu.Unlock()

	if debugRegistry.providers == nil {
		debugRegistry.providers = make(map[string]DebugProvider)
	}

	debugRegistry.providers[name] = provider
}

// UnregisterDebugProvider removes a provider from the debug endpoint.
func UnregisterDebugProvider(name string) {
	debugRegistry.mu.Lock()
	defer debugRegistry.mu.Unlock()

	delete(debugRegistry.providers, name)
}

func handleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

		return
	}

	debugRegistry.mu.RLock()
	response := make(map[string]interface{}, len(debugRegistry.providers))
	for name, provider := range debugRegistry.providers {
		response[name] = provider.GetDebugInfo()
	}
	debugRegistry.mu.RUnlock()

	body, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		http.Error(w, "Failed to encode debug info", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// Handler returns the mux serving /metrics and /debug/coordinators.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/coordinators", handleDebug)

	return mux
}

// SetupMetricsEndpoint starts an HTTP server to expose metrics.
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	server := &http.Server{
		Addr:        addr,
		Handler:     Handler(),
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeError, logger.For(logger.ComponentMetrics))
		}
	}()

	return server
}

// IncErrorCount increments the error counter for a component.
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// InitErrorCounter initializes the error counter for a component.
func InitErrorCounter(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Add(0)
}

// RecordEvent counts one event taken off a coordinator's queue.
func RecordEvent(coordinator, result string) {
	eventsProcessed.WithLabelValues(coordinator, result).Inc()
}

// ObserveBatch records the processing time of one batch.
func ObserveBatch(coordinator string, success bool, duration time.Duration) {
	label := "true"
	if !success {
		label = "false"
	}

	batchDuration.WithLabelValues(coordinator, label).Observe(duration.Seconds())
}

// UpdateCoordinatorStatus sets the status gauge of a coordinator.
func UpdateCoordinatorStatus(coordinator, status string) {
	coordinatorStatus.WithLabelValues(coordinator).Set(statusValue(status))
}

// RemoveCoordinator drops the per-coordinator series of a closed coordinator.
func RemoveCoordinator(coordinator string) {
	coordinatorStatus.DeleteLabelValues(coordinator)
}

// RecordRegistrationChange counts an aggregate flip delivered to coordinator.
func RecordRegistrationChange(coordinator, status string) {
	registrationFlips.WithLabelValues(coordinator, status).Inc()
}

// RecordActivation counts one activation attempt of a component.
func RecordActivation(component string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}

	activationAttempts.WithLabelValues(component, result).Inc()
}

// AddStarvationTime increases the starvation counter by the specified seconds.
func AddStarvationTime(seconds float64) {
	starvationSeconds.Add(seconds)
}

func statusValue(status string) float64 {
	switch status {
	case "DOWN":
		return 0
	case "UP":
		return 1
	case "ERROR":
		return 2
	default:
		return -1
	}
}
