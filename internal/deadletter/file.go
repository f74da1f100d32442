// internal/deadletter/file.go
package deadletter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"robo-ingest/internal/jsonl"
	"robo-ingest/internal/model"
	"robo-ingest/internal/objectstore"

	zlog "github.com/rs/zerolog/log"
)

// ErrFull is returned when the directory is at MaxBytes.
var ErrFull = errors.New("dead-letter directory full")

// FileSink
// ------------------------------------------------------------
// dead-letter 를 로컬 디스크에 gzip+JSONL 파일로 저장한다.
// 레코드 하나당 파일 하나: <unix>_<instance>_<counter>.jsonl.gz
//
// 용량(MaxBytes)을 넘으면 오래된 파일을 지우지 않고 ErrFull 을 돌려준다.
// dead-letter 는 운영자가 확인하기 전까지 버리면 안 된다.
// S3 로 옮기는 일은 Shipper 가 한다.
type FileSink struct {
	dir      string
	instance string
	maxBytes int64

	mu        sync.Mutex
	sizeBytes atomic.Int64
}

// NewFileSink 는 디렉토리를 만들고 기존 파일 크기를 다시 센다.
// .tmp 로 끝나는 쓰다 만 파일은 지운다.
func NewFileSink(dir, instanceID string, maxBytes int64) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dead-letter dir: %w", err)
	}
	s := &FileSink{dir: dir, instance: instanceID, maxBytes: maxBytes}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".tmp") {
			_ = os.Remove(filepath.Join(dir, e.Name()))
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	s.sizeBytes.Store(total)
	return s, nil
}

func (s *FileSink) Write(_ context.Context, dl model.DeadLetter) error {
	data, err := jsonl.EncodeGZ([]model.DeadLetter{dl})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	size := int64(len(data))
	if s.maxBytes > 0 && s.sizeBytes.Load()+size > s.maxBytes {
		return ErrFull
	}

	// tmp 에 쓰고 rename: Shipper 가 반쯤 쓴 파일을 집어가지 않도록.
	name := objectstore.NewFilename(s.instance)
	final := filepath.Join(s.dir, name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.sizeBytes.Add(size)
	return nil
}

func (s *FileSink) Close() error { return nil }

// SizeBytes returns the bytes currently held on disk.
func (s *FileSink) SizeBytes() int64 { return s.sizeBytes.Load() }

// ReadAll decodes every dead-letter file in name (= time) order.
func (s *FileSink) ReadAll() ([]model.DeadLetter, error) {
	var out []model.DeadLetter
	for _, name := range s.list() {
		f, err := os.Open(filepath.Join(s.dir, name))
		if err != nil {
			return out, err
		}
		recs, err := jsonl.DecodeGZ[model.DeadLetter](f)
		f.Close()
		if err != nil {
			return out, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

// list 는 data 파일명을 정렬해서 돌려준다.
// 파일명 prefix 가 unix 초이므로 문자열 정렬 = 시간 정렬.
func (s *FileSink) list() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == "" || name[0] == '.' || strings.HasSuffix(name, ".tmp") {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files
}

// removed 는 Shipper 가 파일을 옮긴 뒤 호출한다.
func (s *FileSink) removed(name string, size int64) {
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		zlog.Warn().Err(err).Str("file", name).Msg("dead-letter remove failed")
		return
	}
	s.sizeBytes.Add(-size)
}
