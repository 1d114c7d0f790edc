package dataset

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/YaganovValera/dataset-api/common/backoff"
	"github.com/YaganovValera/dataset-api/common/logger"
)

const s3Scheme = "s3://"

// parseS3 разбирает s3://bucket/key.
func parseS3(src string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(src, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("dataset: invalid s3 source %q, want s3://bucket/key", src)
	}
	return bucket, key, nil
}

// detectFormat определяет формат по расширению, если задан auto.
func detectFormat(format, file string) (string, error) {
	format = strings.ToLower(format)
	if format != FormatAuto && format != "" {
		return format, nil
	}
	switch strings.ToLower(path.Ext(file)) {
	case ".pq", ".parquet":
		return FormatParquet, nil
	case ".csv", ".tsv":
		return FormatCSV, nil
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("dataset: cannot detect format of %q, set dataset.format", file)
}

// fetcher скачивает объект в локальный файл.
type fetcher interface {
	FGetObject(ctx context.Context, bucket, key, filePath string, opts minio.GetObjectOptions) error
}

func newS3Client(cfg S3Config) (*minio.Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("dataset: s3 client: %w", err)
	}
	return mc, nil
}

// resolve возвращает локальный путь к файлу и функцию очистки.
// Источник s3:// скачивается во временный каталог.
func resolve(ctx context.Context, cfg Config, s3 fetcher, log *logger.Logger) (string, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(cfg.Source, s3Scheme) {
		if _, err := os.Stat(cfg.Source); err != nil {
			return "", noop, fmt.Errorf("dataset: source: %w", err)
		}
		return cfg.Source, noop, nil
	}

	bucket, key, err := parseS3(cfg.Source)
	if err != nil {
		return "", noop, err
	}
	dir, err := os.MkdirTemp("", "dataset-*")
	if err != nil {
		return "", noop, fmt.Errorf("dataset: temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	local := filepath.Join(dir, path.Base(key))

	err = backoff.Execute(ctx, cfg.Backoff, log, "dataset-fetch", func(ctx context.Context) error {
		err := s3.FGetObject(ctx, bucket, key, local, minio.GetObjectOptions{})
		if err != nil && minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		cleanup()
		return "", noop, fmt.Errorf("dataset: fetch %s: %w", cfg.Source, err)
	}
	log.Info("dataset: fetched from s3",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("local", local),
	)
	return local, cleanup, nil
}
