package jsonl

import (
	"bufio"
	"bytes"
	"io"

	"robo-ingest/internal/pool"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// EncodeGZ 는 items 를 JSONL 형식으로 줄 단위 인코딩한 뒤 gzip 압축해 반환한다.
// dead-letter 파일과 S3 감사 로그 배치가 같은 포맷을 쓴다.
//
// 결과는 pool 버퍼가 아니라 새로 복사한 slice 이므로 호출자가 소유한다.
// (pool 버퍼를 그대로 돌려주면 재사용 시 데이터가 오염된다)
func EncodeGZ[T any](items []T) ([]byte, error) {
	buf := pool.BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer pool.PutBuffer(buf)

	gz := pool.GzipPool.Get().(*gzip.Writer)
	gz.Reset(buf)
	defer pool.GzipPool.Put(gz)

	enc := json.NewEncoder(gz)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			_ = gz.Close()
			return nil, err
		}
	}

	// Close() 시 gzip footer 가 써지며 스트림이 완성된다.
	if err := gz.Close(); err != nil {
		return nil, err
	}

	raw := buf.Bytes()
	data := make([]byte, len(raw))
	copy(data, raw)
	return data, nil
}

// DecodeGZ reads back a gzip+JSONL stream produced by EncodeGZ.
func DecodeGZ[T any](r io.Reader) ([]T, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var out []T
	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, sc.Err()
}
