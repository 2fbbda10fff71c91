package mergequeue

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
)

const metricNamespace = "automerger_merge_queue"

const (
	queueOperationsMetricName = "queue_operations_total"
	outcomesMetricName        = "entry_outcomes_total"
	mergeAttemptsMetricName   = "merge_attempts_total"
	queueSizeMetricName       = "queued_entries_count"
)

const (
	baseBranchLabel = "base_branch"
	repositoryLabel = "repository"
	operationLabel  = "operation"
	stateLabel      = "state"
	resultLabel     = "result"
)

type operationLabelVal string

const (
	operationLabelEnqueueVal operationLabelVal = "enqueue"
	operationLabelReplaceVal operationLabelVal = "replace"
	operationLabelRequeueVal operationLabelVal = "requeue"
	operationLabelRemoveVal  operationLabelVal = "remove"
)

type metricCollector struct {
	logger        *zap.Logger
	queueOps      *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	mergeAttempts *prometheus.CounterVec
	queueSize     *prometheus.GaugeVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		queueOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      queueOperationsMetricName,
				Help:      "count of queue operations",
			},
			[]string{repositoryLabel, baseBranchLabel, operationLabel},
		),
		outcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      outcomesMetricName,
				Help:      "count of queue entries that reached a terminal state",
			},
			[]string{repositoryLabel, baseBranchLabel, stateLabel},
		),
		mergeAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      mergeAttemptsMetricName,
				Help:      "count of merge requests sent to github by result",
			},
			[]string{repositoryLabel, baseBranchLabel, resultLabel},
		),
		queueSize: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      queueSizeMetricName,
				Help:      "number of entries in a merge queue",
			},
			[]string{repositoryLabel, baseBranchLabel},
		),
	}
}

func (m *metricCollector) logGetMetricFailed(metricName string, err error) {
	m.logger.Warn(
		"could not record metric",
		logfields.Event("recording_metric_failed"),
		zap.String("metric", metricName),
		zap.Error(err),
	)
}

func branchLabels(b BranchID) prometheus.Labels {
	return prometheus.Labels{
		repositoryLabel: fmt.Sprintf("%s/%s", b.RepositoryOwner, b.Repository),
		baseBranchLabel: b.Branch,
	}
}

func (m *metricCollector) QueueOperationsInc(b BranchID, op operationLabelVal) {
	labels := branchLabels(b)
	labels[operationLabel] = string(op)

	cnt, err := m.queueOps.GetMetricWith(labels)
	if err != nil {
		m.logGetMetricFailed(queueOperationsMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) OutcomesInc(b BranchID, state State) {
	labels := branchLabels(b)
	labels[stateLabel] = string(state)

	cnt, err := m.outcomes.GetMetricWith(labels)
	if err != nil {
		m.logGetMetricFailed(outcomesMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) MergeAttemptsInc(b BranchID, result string) {
	labels := branchLabels(b)
	labels[resultLabel] = result

	cnt, err := m.mergeAttempts.GetMetricWith(labels)
	if err != nil {
		m.logGetMetricFailed(mergeAttemptsMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) QueueSizeSet(b BranchID, size int) {
	g, err := m.queueSize.GetMetricWith(branchLabels(b))
	if err != nil {
		m.logGetMetricFailed(queueSizeMetricName, err)
		return
	}

	g.Set(float64(size))
}
