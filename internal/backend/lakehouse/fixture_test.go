package lakehouse

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/parquet-go/parquet-go"

	"github.com/nlbridge/nlbridge/internal/storage"
)

// writeTableObject encodes rows as one parquet file and puts it under
// <table>/<file>.parquet, matching the layout discoverTables expects.
func writeTableObject[T any](ctx context.Context, store storage.ObjectStore, table, file string, rows []T) (storage.ObjectInfo, error) {
	if len(rows) == 0 {
		return storage.ObjectInfo{}, fmt.Errorf("rows are required")
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[T](buf)
	if _, err := writer.Write(rows); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("close parquet writer: %w", err)
	}

	key := path.Join(table, file)
	if path.Ext(key) != ".parquet" {
		key += ".parquet"
	}
	info, err := store.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), storage.PutOptions{ContentType: "application/vnd.apache.parquet"})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put parquet object %q: %w", key, err)
	}
	return info, nil
}
