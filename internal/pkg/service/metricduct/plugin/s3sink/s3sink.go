// Package s3sink archives series to an S3 compatible object storage.
//
// The Destination of the load item is the bucket name.
// Each load writes one JSON object "<prefix>/<name>/<partition>/<timestamp>.json",
// the partition is an optional strftime pattern, for example "%Y/%m/%d".
package s3sink

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/gzip"
	"github.com/lestrrat-go/strftime"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/keboola/metric-duct/internal/pkg/encoding/json"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/model"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/plugin/params"
	"github.com/keboola/metric-duct/internal/pkg/service/metricduct/registry"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

const (
	Type            = "s3"
	CompressionGzip = "gzip"
	timestampFormat = "20060102T150405.000000000Z"
)

type Config struct {
	// Endpoint, the sink is disabled if it is empty.
	Endpoint  string `configKey:"endpoint" configUsage:"S3 endpoint, for example \"s3.amazonaws.com\", the S3 sink is disabled if empty."`
	AccessKey string `configKey:"accessKey" configUsage:"S3 access key." sensitive:"true"`
	SecretKey string `configKey:"secretKey" configUsage:"S3 secret key." sensitive:"true"`
	Region    string `configKey:"region" configUsage:"S3 region."`
	UseSSL    bool   `configKey:"useSSL" configUsage:"Use HTTPS to connect to the S3 endpoint."`
}

type Params struct {
	Prefix      string `json:"prefix,omitempty"`
	Partition   string `json:"partition,omitempty"`
	Compression string `json:"compression,omitempty" validate:"omitempty,oneof=gzip"`
}

// Uploader is implemented by *minio.Client.
type Uploader interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Payload struct {
	Name   string         `json:"name,omitempty"`
	Series []model.Series `json:"series"`
}

type Sink struct {
	clock    clockwork.Clock
	uploader Uploader
}

func NewConfig() Config {
	return Config{UseSSL: true}
}

func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

func NewClient(cfg Config) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.PrefixError(err, "cannot create S3 client")
	}
	return client, nil
}

func New(clock clockwork.Clock, uploader Uploader) *Sink {
	return &Sink{clock: clock, uploader: uploader}
}

func (s *Sink) Module() registry.Module {
	return func(b *registry.Builder) {
		b.AddLoad(Type, s)
	}
}

func (s *Sink) Load(ctx context.Context, item model.Load, series []model.Series) error {
	var p Params
	if err := params.Decode(ctx, item.Params, &p); err != nil {
		return err
	}

	data, err := json.Encode(Payload{Name: item.Name, Series: series}, false)
	if err != nil {
		return err
	}

	name := item.Name
	if name == "" {
		name = "series"
	}

	now := s.clock.Now().UTC()
	partition := ""
	if p.Partition != "" {
		partition, err = strftime.Format(p.Partition, now)
		if err != nil {
			return errors.PrefixErrorf(err, `invalid partition pattern "%s"`, p.Partition)
		}
	}

	key := path.Join(p.Prefix, name, partition, now.Format(timestampFormat)+".json")
	opts := minio.PutObjectOptions{ContentType: "application/json"}
	if p.Compression == CompressionGzip {
		if data, err = compress(data); err != nil {
			return err
		}
		key += ".gz"
		opts.ContentEncoding = "gzip"
	}

	_, err = s.uploader.PutObject(ctx, item.Destination, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return errors.PrefixErrorf(err, `cannot store object "%s" to bucket "%s"`, key, item.Destination)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
