// internal/deadletter/sink.go
package deadletter

import (
	"context"

	"robo-ingest/internal/model"
)

// Sink 은 dead-letter 의 최종 저장소.
// dispatcher 는 이벤트당 정확히 한 번 Write 를 호출한다.
// Write 가 실패하면 dispatcher 가 전체 레코드를 ERROR 감사 줄로 남긴다.
type Sink interface {
	Write(ctx context.Context, dl model.DeadLetter) error
	Close() error
}
