// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"robo-ingest/internal/config"

	stdlog "log"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 애플리케이션 시작 시 한 번만 호출되는 운영 로거 초기화 함수.
// 감사(audit) 로그는 Audit 가 따로 쓰며, 여기 설정(레벨/샘플링)의 영향을 받지 않는다.
//
// [주요 기능]
//
//  1. 로그 포맷 자동 전환:
//     - 개발 환경 (LOG_PRETTY=true): ConsoleWriter
//     - 운영 환경 (LOG_PRETTY=false): JSON
//
//  2. 공통 필드 자동 추가: "service", "instance"
//
//  3. 로그 샘플링: Debug/Info 만 1/N, Warn/Error 는 100% 기록
func Init(cfg config.Config) {

	// -------------------------------------------------------------------
	// 1) 로그 레벨 결정
	// -------------------------------------------------------------------
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && l != zerolog.NoLevel {
		level = l
	}

	zerolog.SetGlobalLevel(level)
	zerolog.InterfaceMarshalFunc = json.Marshal

	// -------------------------------------------------------------------
	// 2) 출력 방식 결정 (사람 vs 기계)
	// -------------------------------------------------------------------
	var w io.Writer

	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	} else {
		w = os.Stdout
	}

	// -------------------------------------------------------------------
	// 3) 기본 Logger 생성 (공통 태그 부착)
	// -------------------------------------------------------------------
	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	// -------------------------------------------------------------------
	// 4) 샘플링 설정
	// -------------------------------------------------------------------
	logger := base

	if cfg.LogSampleN > 1 {
		logger = base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}

	// -------------------------------------------------------------------
	// 5) 전역 Logger 교체 + 표준 log 연결
	// -------------------------------------------------------------------
	zlog.Logger = logger

	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}
