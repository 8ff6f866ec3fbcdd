package poller

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/taoyao-code/gas-sensor/internal/storage/models"
)

var csvHeader = []string{
	"time", "sensor", "cycle", "concentration", "unit", "gas",
	"temperature", "pressure", "rel_humidity", "abs_humidity",
}

// CSVSink 读数追加到 CSV 文件；新文件先写表头
type CSVSink struct {
	mu     sync.Mutex
	closer io.Closer
	w      *csv.Writer
}

// OpenCSV 以追加方式打开（必要时创建目录与文件）
func OpenCSV(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create csv dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s := NewCSVSink(f)
	s.closer = f
	if st.Size() == 0 {
		if err := s.writeRow(csvHeader); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewCSVSink 写入任意 io.Writer，不写表头
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Write(_ context.Context, r models.Reading) error {
	f32 := func(v float32) string { return strconv.FormatFloat(float64(v), 'f', -1, 32) }
	return s.writeRow([]string{
		r.Time.Format(time.RFC3339Nano),
		r.Sensor,
		strconv.FormatUint(uint64(r.Cycle), 10),
		f32(r.Concentration),
		r.Unit,
		r.Gas,
		f32(r.Temperature),
		f32(r.Pressure),
		f32(r.RelHumidity),
		f32(r.AbsHumidity),
	})
}

func (s *CSVSink) writeRow(row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if s.closer != nil {
		return s.closer.Close()
	}
	return s.w.Error()
}
