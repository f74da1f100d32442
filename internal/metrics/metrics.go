package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 는 파이프라인 상태를 나타내는 collector 모음이다.
// 테스트마다 새 registry 를 넘길 수 있도록 전역 promauto 대신 New(reg) 로 만든다.
type Metrics struct {
	// ======================
	// Adapter (HTTP) 지표
	// ======================

	// RequestsTotal
	// - 플랫폼 콜백 수, origin / outcome(ok, disabled, unauthorized,
	//   malformed, invalid, backpressure, error) 별.
	// - unauthorized 가 튀면 secret rotation 누락 또는 공격 시도.
	RequestsTotal *prometheus.CounterVec

	// ======================
	// CEN 지표
	// ======================

	// AdmittedTotal: backlog 에 들어간 이벤트 수 (origin 별).
	AdmittedTotal *prometheus.CounterVec

	// BackpressureTotal: backlog 가 가득 차서 503 을 돌려준 횟수.
	// 지속적으로 증가하면 Receiver 가 느리거나 죽어 있다는 신호.
	BackpressureTotal prometheus.Counter

	// BacklogInUse: queued + retry 대기 이벤트 수 (gauge).
	BacklogInUse prometheus.Gauge

	// DeliveriesTotal: dispatcher 의 Receiver 호출 결과
	// (admitted, duplicate, transient, permanent).
	DeliveriesTotal *prometheus.CounterVec

	// RetriesScheduled: backoff 로 재시도가 예약된 횟수.
	RetriesScheduled prometheus.Counter

	// DeadLettersTotal: dead-letter 로 간 이벤트 수 (reason 별).
	// 0 이 아니면 운영자가 반드시 확인해야 한다.
	DeadLettersTotal *prometheus.CounterVec

	// ======================
	// Receiver 지표
	// ======================

	DuplicatesTotal            prometheus.Counter
	PersistenceErrorsTotal     prometheus.Counter
	ReconciliationMarkersTotal prometheus.Counter

	// ======================
	// Object store 지표
	// ======================

	// S3PutErrorsTotal
	// - PutObject 실패 "시도" 횟수. 재시도마다 증가한다.
	S3PutErrorsTotal prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robo_webhook_requests_total",
			Help: "Platform callbacks received, by origin and outcome.",
		}, []string{"origin", "outcome"}),

		AdmittedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robo_cen_admitted_total",
			Help: "Neutral events admitted into the dispatch backlog.",
		}, []string{"origin"}),

		BackpressureTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "robo_cen_backpressure_total",
			Help: "Admissions rejected because the dispatch backlog was full.",
		}),

		BacklogInUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "robo_cen_backlog_in_use",
			Help: "Events queued or waiting for a retry.",
		}),

		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robo_cen_deliveries_total",
			Help: "Delivery attempts to the Receiver, by outcome.",
		}, []string{"outcome"}),

		RetriesScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "robo_cen_retries_scheduled_total",
			Help: "Deliveries rescheduled with backoff.",
		}),

		DeadLettersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "robo_cen_dead_letters_total",
			Help: "Events moved to the dead-letter sink, by reason.",
		}, []string{"reason"}),

		DuplicatesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "robo_receiver_duplicates_total",
			Help: "Deliveries rejected as duplicates of an admitted key.",
		}),

		PersistenceErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "robo_receiver_persistence_errors_total",
			Help: "Persistence port failures seen by the Receiver.",
		}),

		ReconciliationMarkersTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "robo_receiver_reconciliation_markers_total",
			Help: "Admissions whose shared dedup write failed after the Motor was mutated.",
		}),

		S3PutErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "robo_s3_put_errors_total",
			Help: "Failed S3 PutObject attempts.",
		}),
	}
}

// NewNop returns collectors registered on a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
