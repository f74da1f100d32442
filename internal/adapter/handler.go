// internal/adapter/handler.go
package adapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"robo-ingest/internal/apperr"
	"robo-ingest/internal/httpx"
	"robo-ingest/internal/logger"
	"robo-ingest/internal/metrics"
	"robo-ingest/internal/model"
	"robo-ingest/internal/pool"
	"robo-ingest/internal/timecache"

	zlog "github.com/rs/zerolog/log"
)

// Admitter is the CEN entry point.
type Admitter interface {
	Admit(ctx context.Context, ev *model.NeutralEvent) (model.AdmitResult, error)
}

// Handler
// ------------------------------------------------------------
// 플랫폼 1개의 콜백 endpoint.
//
// 처리 순서:
//  1. secret 미설정 → 503
//  2. body 읽기 (MaxBodySize, AdapterTimeout)
//  3. 인증 (raw body 기준) → 실패 시 401 + WARN 감사 줄 (IP 만, body 없음)
//  4. 정규화 → 실패 시 400
//  5. ingested_at 스탬프 (어댑터별 monotone clock)
//  6. "Evento recebido" 감사 줄
//  7. CEN Admit (동기) → 422 / 400 / 503, 거절 시 "Evento recusado" 감사 줄
//  8. 200 {"status":"ok"}
//
// downstream 처리는 기다리지 않는다. 응답은 CEN 이 이벤트를 소유한 시점에 나간다.
type Handler struct {
	platform Platform
	cen      Admitter
	audit    *logger.Audit
	metrics  *metrics.Metrics
	clock    *timecache.Monotonic

	maxBody int64
	timeout time.Duration
}

type Options struct {
	MaxBodySize int64
	Timeout     time.Duration
}

func NewHandler(p Platform, cen Admitter, audit *logger.Audit, m *metrics.Metrics, opt Options) *Handler {
	if opt.MaxBodySize <= 0 {
		opt.MaxBodySize = 1 << 20
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 10 * time.Second
	}
	return &Handler{
		platform: p,
		cen:      cen,
		audit:    audit,
		metrics:  m,
		clock:    timecache.NewMonotonic(nil),
		maxBody:  opt.MaxBodySize,
		timeout:  opt.Timeout,
	}
}

var okBody = map[string]string{"status": "ok"}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := h.platform.Origin()

	if !h.platform.Configured() {
		h.reject(w, origin, "disabled", apperr.ErrConfigMissing)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	r = r.WithContext(ctx)

	// --------------------------------------------------------------------
	// body 읽기: BodyPool 버퍼 재사용 후 소유 가능한 사본만 남긴다.
	// --------------------------------------------------------------------
	body, err := h.readBody(w, r)
	if err != nil {
		h.reject(w, origin, "malformed", err)
		return
	}

	// --------------------------------------------------------------------
	// 인증
	// --------------------------------------------------------------------
	if err := h.platform.Authenticate(r, body); err != nil {
		h.audit.Warn(string(origin), "Falha de autenticacao", map[string]any{
			"ip":   remoteHost(r),
			"path": r.URL.Path,
		})
		h.reject(w, origin, "unauthorized", err)
		return
	}

	// --------------------------------------------------------------------
	// 정규화
	// --------------------------------------------------------------------
	ev, err := h.platform.Normalize(r, body)
	if err != nil {
		h.reject(w, origin, "malformed", err)
		return
	}
	ev.IngestedAt = h.clock.Now()

	h.audit.Info(string(origin), "Evento recebido", map[string]any{"id": ev.ExternalID})

	// --------------------------------------------------------------------
	// CEN 동기 admission
	// --------------------------------------------------------------------
	if _, err := h.cen.Admit(ctx, ev); err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, apperr.ErrBackpressure):
			outcome = "backpressure"
		case errors.Is(err, apperr.ErrInvalidEvent):
			outcome = "invalid"
		case errors.Is(err, apperr.ErrMalformedPayload):
			outcome = "malformed"
		}
		h.audit.Warn(string(origin), "Evento recusado", map[string]any{
			"id":      ev.ExternalID,
			"outcome": outcome,
			"status":  apperr.HTTPStatus(err),
		})
		h.reject(w, origin, outcome, err)
		return
	}

	h.metrics.RequestsTotal.WithLabelValues(string(origin), "ok").Inc()
	httpx.WriteJSON(w, http.StatusOK, okBody)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Method == http.MethodGet {
		return nil, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	defer r.Body.Close()

	buf := pool.BodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer pool.PutBody(buf, h.maxBody*2)

	if _, err := io.Copy(buf, r.Body); err != nil {
		return nil, errors.Join(apperr.ErrMalformedPayload, err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

// remoteHost 는 RemoteAddr 의 host 부분. 프록시 헤더 해석은 router 의 RealIP 가 맡는다.
func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// reject 는 상태 코드 / 고정 문구만 내보낸다. err 문자열은 운영 로그에만 남는다.
func (h *Handler) reject(w http.ResponseWriter, origin model.Origin, outcome string, err error) {
	h.metrics.RequestsTotal.WithLabelValues(string(origin), outcome).Inc()
	status := apperr.HTTPStatus(err)

	ev := zlog.Debug()
	if status >= 500 {
		ev = zlog.Warn()
	}
	ev.Str("origin", string(origin)).Str("outcome", outcome).Int("status", status).Err(err).Msg("webhook rejected")

	httpx.WriteError(w, status, apperr.PublicMessage(err))
}
