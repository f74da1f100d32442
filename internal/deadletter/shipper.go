// internal/deadletter/shipper.go
package deadletter

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"robo-ingest/internal/objectstore"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	zlog "github.com/rs/zerolog/log"
)

// FileUploader is the upload side of objectstore.S3Store.
type FileUploader interface {
	PutFile(ctx context.Context, key string, f io.ReadSeeker, size int64) error
}

// Shipper
// ------------------------------------------------------------
// FileSink 디렉토리의 dead-letter 파일을 S3 로 옮긴다.
//
//   - 가장 오래된 파일부터 1개씩 (ShipOne)
//   - 첫 줄이 유효한 JSON 이면 <prefix>/dt=../hr=../<file>,
//     깨져 있으면 <prefix>/invalid/dt=../hr=../<file>
//   - 업로드 성공 시에만 로컬 파일 삭제
type Shipper struct {
	sink     *FileSink
	uploader FileUploader
	prefix   string
	interval time.Duration
}

func NewShipper(sink *FileSink, up FileUploader, prefix string, interval time.Duration) *Shipper {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Shipper{sink: sink, uploader: up, prefix: prefix, interval: interval}
}

// Run ships files until ctx is done. 한 tick 에 최대 10개 (starvation 방지용 상한).
func (s *Shipper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for i := 0; i < 10; i++ {
				if !s.ShipOne(ctx) {
					break
				}
			}
		}
	}
}

// ShipOne uploads the oldest file. It reports whether a file was shipped.
func (s *Shipper) ShipOne(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	files := s.sink.list()
	if len(files) == 0 {
		return false
	}
	name := files[0]
	path := filepath.Join(s.sink.dir, name)

	f, err := os.Open(path)
	if err != nil {
		zlog.Warn().Err(err).Str("file", name).Msg("dead-letter open failed")
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false
	}
	size := info.Size()

	prefix := s.prefix
	if !validFile(f, size) {
		prefix = objectstore.Join(s.prefix, "invalid")
	}
	key := objectstore.PartitionKey(prefix, name)

	if err := s.uploader.PutFile(ctx, key, f, size); err != nil {
		zlog.Warn().Err(err).Str("key", key).Msg("dead-letter ship failed")
		return false
	}

	s.sink.removed(name, size)
	zlog.Info().Str("key", key).Int64("bytes", size).Msg("dead-letter shipped")
	return true
}

// validFile 은 gzip 을 풀어 첫 JSONL 줄이 유효한 JSON 인지 본다.
func validFile(f *os.File, size int64) bool {
	if size <= 0 {
		return false
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		return false
	}
	defer gz.Close()

	line, err := bufio.NewReader(gz).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return false
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}
	var tmp map[string]any
	return json.Unmarshal(line, &tmp) == nil
}
