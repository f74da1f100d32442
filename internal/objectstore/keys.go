// internal/objectstore/keys.go
package objectstore

import (
	"fmt"
	"strings"
	"sync/atomic"

	"robo-ingest/internal/timecache"
)

// keys.go
// ------------------------------------------------------------
// dead-letter 파일과 S3 배치 객체에 쓰는 파일명 / key 규칙.
//
// 파일명 규칙:
//
//	<unix>_<instance>_<counter>.jsonl.gz
//
// 예:
//
//	1764721594_robo1_000042.jsonl.gz
//
// 문자열 정렬 = 시간 정렬이므로 dead-letter 디렉토리에서
// 가장 오래된 파일을 먼저 처리할 수 있다.
var globalCounter uint64

// NextCounter 는 1e6 에서 0 으로 돌아간다.
// timestamp + instance 조합으로 파일명 충돌은 사실상 없다.
func NextCounter() uint64 {
	return atomic.AddUint64(&globalCounter, 1) % 1_000_000
}

// NewFilename returns "<unix>_<instance>_<counter>.jsonl.gz".
func NewFilename(instanceID string) string {
	return fmt.Sprintf("%d_%s_%06d.jsonl.gz", timecache.Unix(), instanceID, NextCounter())
}

// PartitionKey
// ------------------------------------------------------------
// 시간 파티션 key:
//
//	<prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<filename>
//
// Athena / Glue 파티션 스캔 비용을 줄이기 위한 구조.
func PartitionKey(prefix, filename string) string {
	return fmt.Sprintf("%s/dt=%s/hr=%s/%s", prefix, timecache.DT(), timecache.HR(), filename)
}

// Join joins key segments with "/", skipping empty ones and trimming stray slashes.
func Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}
