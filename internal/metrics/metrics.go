package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hub_analyzer"

// Metrics 分析服务的 Prometheus 指标
// 所有方法对 nil 接收者安全，未配置指标时直接传 nil
type Metrics struct {
	recordsTotal      *prometheus.CounterVec
	commitsTotal      *prometheus.CounterVec
	readFailuresTotal *prometheus.CounterVec
	deadLetterTotal   *prometheus.CounterVec
	consumerState     *prometheus.GaugeVec
	scenariosTotal    *prometheus.CounterVec
	actionsTotal      *prometheus.CounterVec
	cacheTotal        *prometheus.CounterVec
	registrationTotal *prometheus.CounterVec
}

// New 创建并注册指标；reg 为 nil 时返回 nil
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "records_total",
			Help:      "Stream records handled, by outcome",
		}, []string{"stream", "result"}),

		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "commits_total",
			Help:      "Position commits, by outcome",
		}, []string{"stream", "result"}),

		readFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "read_failures_total",
			Help:      "Failed stream reads",
		}, []string{"stream"}),

		deadLetterTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "dead_letter_total",
			Help:      "Failed records republished to the dead-letter stream",
		}, []string{"stream"}),

		consumerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "state",
			Help:      "Current consumer state (1 for the active state)",
		}, []string{"stream", "state"}),

		scenariosTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "scenarios_total",
			Help:      "Scenario evaluations, by outcome",
		}, []string{"result"}),

		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "actions_total",
			Help:      "Device commands sent, by outcome",
		}, []string{"result"}),

		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Scenario cache lookups, by outcome",
		}, []string{"result"}),

		registrationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registrar",
			Name:      "entries_total",
			Help:      "Conditions and actions written, by kind",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.recordsTotal,
		m.commitsTotal,
		m.readFailuresTotal,
		m.deadLetterTotal,
		m.consumerState,
		m.scenariosTotal,
		m.actionsTotal,
		m.cacheTotal,
		m.registrationTotal,
	)
	return m
}

// RecordProcessed 记录单条消息处理结果
func (m *Metrics) RecordProcessed(stream string, err error) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(stream, resultLabel(err)).Inc()
}

// RecordCommit 记录一次位置提交
func (m *Metrics) RecordCommit(stream string, err error) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(stream, resultLabel(err)).Inc()
}

func (m *Metrics) RecordReadFailure(stream string) {
	if m == nil {
		return
	}
	m.readFailuresTotal.WithLabelValues(stream).Inc()
}

func (m *Metrics) RecordDeadLetter(stream string) {
	if m == nil {
		return
	}
	m.deadLetterTotal.WithLabelValues(stream).Inc()
}

// SetConsumerState 将 state 置 1，其余已知状态置 0
func (m *Metrics) SetConsumerState(stream, state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.consumerState.WithLabelValues(stream, s).Set(v)
	}
}

// RecordEvaluation 记录场景评估结果（fired / skipped）
func (m *Metrics) RecordEvaluation(fired bool) {
	if m == nil {
		return
	}
	result := "skipped"
	if fired {
		result = "fired"
	}
	m.scenariosTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordAction(err error) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(resultLabel(err)).Inc()
}

// RecordCacheLookup result 取 hit / miss / error
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheTotal.WithLabelValues(result).Inc()
}

// RecordRegistered 记录新写入的条件或动作条数（kind 取 condition / action）
func (m *Metrics) RecordRegistered(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.registrationTotal.WithLabelValues(kind).Add(float64(n))
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
