package service

import "time"

// Metrics 对账指标上报
type Metrics interface {
	ObserveReconcile(entry, outcome string)
	ObserveRemoteCall(operation, outcome string)
	ObserveRemoteAction(action, outcome string)
	ObserveSweep(cancelled int, nextDelay time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveReconcile(string, string)    {}
func (noopMetrics) ObserveRemoteCall(string, string)   {}
func (noopMetrics) ObserveRemoteAction(string, string) {}
func (noopMetrics) ObserveSweep(int, time.Duration)    {}

func metricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
