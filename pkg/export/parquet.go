// Package export writes finalized summaries to columnar files.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"gatling-report/pkg/stats"
)

// Row is one request summary of one run
type Row struct {
	RunID          string   `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FilePath       string   `parquet:"name=file_path, type=BYTE_ARRAY, convertedtype=UTF8"`
	Simulation     string   `parquet:"name=simulation, type=BYTE_ARRAY, convertedtype=UTF8"`
	Scenario       string   `parquet:"name=scenario, type=BYTE_ARRAY, convertedtype=UTF8"`
	Request        string   `parquet:"name=request, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartMs        int64    `parquet:"name=start_ms, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Count          int64    `parquet:"name=count, type=INT64"`
	SuccessCount   int64    `parquet:"name=success_count, type=INT64"`
	ErrorCount     int64    `parquet:"name=error_count, type=INT64"`
	MinMs          int64    `parquet:"name=min_ms, type=INT64"`
	MaxMs          int64    `parquet:"name=max_ms, type=INT64"`
	AvgMs          float64  `parquet:"name=avg_ms, type=DOUBLE"`
	StdDevMs       float64  `parquet:"name=stddev_ms, type=DOUBLE"`
	P50Ms          int64    `parquet:"name=p50_ms, type=INT64"`
	P95Ms          int64    `parquet:"name=p95_ms, type=INT64"`
	P99Ms          int64    `parquet:"name=p99_ms, type=INT64"`
	RPS            float64  `parquet:"name=rps, type=DOUBLE"`
	Apdex          *float64 `parquet:"name=apdex, type=DOUBLE, repetitiontype=OPTIONAL"`
	DurationMillis int64    `parquet:"name=duration_ms, type=INT64"`
	MaxUsers       int32    `parquet:"name=max_users, type=INT32"`
}

// RowsOf flattens a run into its request rows, the aggregate first
func RowsOf(s stats.SimulationSummary) []Row {
	rows := make([]Row, 0, len(s.Requests)+1)
	rows = append(rows, rowOf(s, s.All))
	for _, r := range s.Requests {
		rows = append(rows, rowOf(s, r))
	}
	return rows
}

func rowOf(s stats.SimulationSummary, r stats.RequestSummary) Row {
	return Row{
		RunID:          s.ID(),
		FilePath:       s.FilePath,
		Simulation:     r.Simulation,
		Scenario:       r.Scenario,
		Request:        r.Request,
		StartMs:        r.Start,
		Count:          r.Count,
		SuccessCount:   r.SuccessCount,
		ErrorCount:     r.ErrorCount,
		MinMs:          r.Min,
		MaxMs:          r.Max,
		AvgMs:          r.Avg,
		StdDevMs:       r.StdDev,
		P50Ms:          r.P50,
		P95Ms:          r.P95,
		P99Ms:          r.P99,
		RPS:            r.RPS,
		Apdex:          r.Apdex,
		DurationMillis: r.DurationMillis,
		MaxUsers:       int32(r.MaxUsers),
	}
}

// ParquetWriter appends summaries to one parquet file. Safe for
// concurrent use.
type ParquetWriter struct {
	mutex    sync.Mutex
	writer   *writer.ParquetWriter
	file     source.ParquetFile
	filePath string
	rows     int
}

// NewParquetWriter creates filePath and its parent directory
func NewParquetWriter(filePath string) (*ParquetWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := local.NewLocalFileWriter(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	pw, err := writer.NewParquetWriter(file, new(Row), 4)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	return &ParquetWriter{
		writer:   pw,
		file:     file,
		filePath: filePath,
	}, nil
}

// Write appends every request row of s
func (pw *ParquetWriter) Write(s stats.SimulationSummary) error {
	pw.mutex.Lock()
	defer pw.mutex.Unlock()

	for _, row := range RowsOf(s) {
		if err := pw.writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %s/%s: %w", row.RunID, row.Request, err)
		}
		pw.rows++
	}
	return nil
}

// Rows is the number of rows written so far
func (pw *ParquetWriter) Rows() int {
	pw.mutex.Lock()
	defer pw.mutex.Unlock()
	return pw.rows
}

// Close flushes the footer and closes the file
func (pw *ParquetWriter) Close() error {
	pw.mutex.Lock()
	defer pw.mutex.Unlock()

	if err := pw.writer.WriteStop(); err != nil {
		pw.file.Close()
		return fmt.Errorf("failed to stop parquet writer: %w", err)
	}
	if err := pw.file.Close(); err != nil {
		return fmt.Errorf("failed to close parquet file: %w", err)
	}
	return nil
}

func (pw *ParquetWriter) FilePath() string {
	return pw.filePath
}
