package demo

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/maerai/maer/internal/storage"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported format %q", raw)
	}
}

type File struct {
	Name string
	Data []byte
}

type record interface {
	table() string
	header() []string
	values() []any
}

// Encode renders every table of the dataset as one file named after the table.
func (ds Dataset) Encode(format Format) ([]File, error) {
	encoders := []func(Format) (File, error){
		func(f Format) (File, error) { return encodeTable(f, ds.Orders) },
		func(f Format) (File, error) { return encodeTable(f, ds.Items) },
		func(f Format) (File, error) { return encodeTable(f, ds.Products) },
		func(f Format) (File, error) { return encodeTable(f, ds.Customers) },
		func(f Format) (File, error) { return encodeTable(f, ds.Payments) },
		func(f Format) (File, error) { return encodeTable(f, ds.Reviews) },
	}
	files := make([]File, 0, len(encoders))
	for _, encode := range encoders {
		file, err := encode(format)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func encodeTable[T record](format Format, rows []T) (File, error) {
	var zero T
	buf := bytes.NewBuffer(nil)

	switch format {
	case FormatCSV:
		writer := csv.NewWriter(buf)
		if err := writer.Write(zero.header()); err != nil {
			return File{}, fmt.Errorf("write %s header: %w", zero.table(), err)
		}
		for _, row := range rows {
			if err := writer.Write(fields(row)); err != nil {
				return File{}, fmt.Errorf("write %s row: %w", zero.table(), err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return File{}, fmt.Errorf("flush %s: %w", zero.table(), err)
		}
	case FormatParquet:
		writer := parquet.NewGenericWriter[T](buf)
		if _, err := writer.Write(rows); err != nil {
			return File{}, fmt.Errorf("write %s parquet rows: %w", zero.table(), err)
		}
		if err := writer.Close(); err != nil {
			return File{}, fmt.Errorf("close %s parquet writer: %w", zero.table(), err)
		}
	default:
		return File{}, fmt.Errorf("unsupported format %q", format)
	}

	return File{Name: zero.table() + "." + string(format), Data: buf.Bytes()}, nil
}

func WriteDir(dir string, files []File) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	for _, file := range files {
		if err := os.WriteFile(filepath.Join(dir, file.Name), file.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", file.Name, err)
		}
	}
	return nil
}

func Upload(ctx context.Context, store storage.ObjectStore, files []File) error {
	for _, file := range files {
		contentType := "text/csv"
		if strings.HasSuffix(file.Name, ".parquet") {
			contentType = "application/vnd.apache.parquet"
		}
		if _, err := store.Put(ctx, file.Name, bytes.NewReader(file.Data), int64(len(file.Data)), storage.PutOptions{ContentType: contentType}); err != nil {
			return fmt.Errorf("upload %s: %w", file.Name, err)
		}
	}
	return nil
}
