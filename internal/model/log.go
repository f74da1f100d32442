// internal/model/log.go
package model

import "time"

// Level 은 감사 로그 레벨. 감사 계약상 세 값만 허용된다.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// 플랫폼이 아닌 내부 컴포넌트가 남기는 로그의 origem 값.
const (
	LogOriginCEN      = "CEN"
	LogOriginReceiver = "RECEIVER"
	LogOriginSystem   = "SYSTEM"
)

// LogRecord
// ------------------------------------------------------------
// append-only 감사 로그 한 줄.
// 같은 프로세스 안에서 먼저 기록된 레코드의 Ts 는
// 나중 레코드의 Ts 보다 항상 작거나 같다 (logger.Audit 가 보장).
type LogRecord struct {
	Ts      time.Time      `json:"timestamp"`
	Origin  string         `json:"origem"`
	Level   Level          `json:"nivel"`
	Message string         `json:"mensagem"`
	Extra   map[string]any `json:"extra,omitempty"`
}
