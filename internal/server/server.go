// internal/server/server.go
package server

import (
	"net/http"
	"time"

	"robo-ingest/internal/adapter"
	"robo-ingest/internal/config"
	"robo-ingest/internal/httpx"
	"robo-ingest/internal/logger"
	"robo-ingest/internal/metrics"
	"robo-ingest/internal/motor"
	"robo-ingest/internal/receiver"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"
)

// Deps 는 라우터가 연결하는 컴포넌트 모음.
// Receiver 가 nil 이거나 ReceiverToken 이 비어 있으면 /internal/receiver 를 열지 않는다.
type Deps struct {
	Config   config.Config
	CEN      adapter.Admitter
	Backlog  BacklogStats
	Motor    *motor.Motor
	Receiver *receiver.Receiver
	Audit    *logger.Audit
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// BacklogStats exposes CEN occupancy on /status.
type BacklogStats interface {
	InUse() int64
	Capacity() int
}

// NewRouter
//
// 엔드포인트:
//   - POST /webhook/{hotmart,eduzz,monetizze} : 플랫폼 콜백
//   - GET  /postback/clickbank                : ClickBank postback (query)
//   - GET  /status                            : {status, ts}
//   - GET  /health                            : ALB health check
//   - GET  /metrics                           : Prometheus
//   - GET  /offer/best                        : Motor ranking
//   - POST /internal/receiver                 : CEN → Receiver (별도 프로세스 배포 시)
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	opt := adapter.Options{MaxBodySize: d.Config.MaxBodySize, Timeout: d.Config.AdapterTimeout}
	webhook := func(p adapter.Platform) http.Handler {
		return adapter.NewHandler(p, d.CEN, d.Audit, d.Metrics, opt)
	}

	r.Method(http.MethodPost, "/webhook/hotmart", webhook(adapter.Hotmart{Secret: d.Config.HotmartSecret}))
	r.Method(http.MethodPost, "/webhook/eduzz", webhook(adapter.Eduzz{Secret: d.Config.EduzzSecret}))
	r.Method(http.MethodPost, "/webhook/monetizze", webhook(adapter.Monetizze{Token: d.Config.MonetizzeToken}))
	r.Method(http.MethodGet, "/postback/clickbank", webhook(adapter.ClickBank{Secret: d.Config.ClickBankSecret}))

	r.Get("/status", statusHandler(d.Backlog))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		// ALB는 단순 문자열로도 health 판단 가능
		_, _ = w.Write([]byte("ok"))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	if d.Motor != nil {
		r.Get("/offer/best", bestOfferHandler(d.Motor))
	}
	if d.Receiver != nil && d.Config.ReceiverToken != "" {
		r.Post("/internal/receiver", d.Receiver.Handler(d.Config.ReceiverToken))
	}
	return r
}

type statusResponse struct {
	Status  string `json:"status"`
	Ts      string `json:"ts"`
	Backlog *struct {
		InUse    int64 `json:"in_use"`
		Capacity int   `json:"capacity"`
	} `json:"backlog,omitempty"`
}

func statusHandler(b BacklogStats) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := statusResponse{
			Status: "ok",
			Ts:     time.Now().UTC().Format(logger.TimestampFormat),
		}
		if b != nil {
			resp.Backlog = &struct {
				InUse    int64 `json:"in_use"`
				Capacity int   `json:"capacity"`
			}{b.InUse(), b.Capacity()}
		}
		httpx.WriteJSON(w, http.StatusOK, resp)
	}
}

type bestOfferResponse struct {
	Found   bool   `json:"found"`
	Product string `json:"product,omitempty"`
	Total   string `json:"total,omitempty"`
}

func bestOfferHandler(m *motor.Motor) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		product, total, ok := m.BestOffer()
		if !ok {
			httpx.WriteJSON(w, http.StatusOK, bestOfferResponse{})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, bestOfferResponse{Found: true, Product: product, Total: total.String()})
	}
}

// accessLog 는 운영 로그(zerolog) 에 요청 1건당 1줄을 남긴다. Debug 레벨.
// query string 은 남기지 않는다 (ClickBank secretKey).
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zlog.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
