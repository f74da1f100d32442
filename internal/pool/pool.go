package pool

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// Pool 구성 목적
//
// 플랫폼들은 재시도를 공격적으로 하기 때문에 콜백 body 읽기,
// dead-letter / 감사 로그 배치의 gzip 인코딩이 자주 일어난다.
// 아래 Pool 들은 이 구간의 메모리 재사용용이다.
//
// NeutralEvent 는 pool 에 넣지 않는다. CEN 에 들어간 뒤로는
// 파이프라인이 소유하며 언제 해제될지 handler 가 알 수 없다.
// ---------------------------------------------------------------

var (
	// BodyPool:
	//   - 콜백 raw body 를 임시 저장하는 버퍼 (초기 4KB)
	//   - HMAC 계산과 JSON 파싱이 끝나면 반환된다
	BodyPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 4*1024))
		},
	}

	// BufferPool:
	//   - gzip 인코딩 결과를 담는 임시 버퍼 (초기 64KB)
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 64*1024))
		},
	}

	// GzipPool:
	//   - gzip.Writer 재사용, BestSpeed
	GzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// 이보다 큰 버퍼는 Pool 에 넣지 않고 GC 에게 맡긴다.
const MaxBufferCap = 1 * 1024 * 1024 // 1MB

// PutBody returns buf to BodyPool unless it grew beyond maxCap.
func PutBody(buf *bytes.Buffer, maxCap int64) {
	if int64(buf.Cap()) <= maxCap {
		buf.Reset()
		BodyPool.Put(buf)
	}
}

// PutBuffer returns buf to BufferPool unless it grew beyond MaxBufferCap.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}
