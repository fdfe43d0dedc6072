// Package sources opens the bulk import file from the local filesystem or
// from an S3 compatible object store.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ErrStorageNotConfigured is returned for s3:// locations without an endpoint.
var ErrStorageNotConfigured = errors.New("object storage endpoint not configured")

// Config holds the object storage settings
type Config struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Region    string `koanf:"region"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// Location is a parsed import file location.
type Location struct {
	Bucket string
	Key    string
	Path   string
}

// Remote reports whether the location points into object storage.
func (l Location) Remote() bool {
	return l.Bucket != ""
}

func (l Location) String() string {
	if l.Remote() {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Path
}

// ParseLocation accepts a filesystem path, a file:// URL or s3://bucket/key.
func ParseLocation(location string) (Location, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return Location{}, errors.New("empty file location")
	}

	switch {
	case strings.HasPrefix(location, "s3://"):
		u, err := url.Parse(location)
		if err != nil {
			return Location{}, fmt.Errorf("invalid location %q: %w", location, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Location{}, fmt.Errorf("invalid location %q: expected s3://bucket/key", location)
		}
		return Location{Bucket: u.Host, Key: key}, nil
	case strings.HasPrefix(location, "file://"):
		return Location{Path: strings.TrimPrefix(location, "file://")}, nil
	default:
		return Location{Path: location}, nil
	}
}

// Opener opens import files by location.
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Sources implements Opener.
type Sources struct {
	config Config
	logger *zap.Logger
}

func New(config Config, logger *zap.Logger) *Sources {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sources{config: config, logger: logger}
}

func (s *Sources) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	if !loc.Remote() {
		f, err := os.Open(loc.Path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", loc.Path, err)
		}
		return f, nil
	}
	return s.openObject(ctx, loc)
}

func (s *Sources) openObject(ctx context.Context, loc Location) (io.ReadCloser, error) {
	client, err := s.client()
	if err != nil {
		return nil, err
	}

	s.logger.Info("fetching import file from object storage",
		zap.String("endpoint", s.config.Endpoint),
		zap.String("location", loc.String()))

	obj, err := client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", loc, err)
	}
	// GetObject is lazy; Stat surfaces a missing bucket or key before reading.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("stat %s: %w", loc, err)
	}
	return obj, nil
}

func (s *Sources) client() (*minio.Client, error) {
	if s.config.Endpoint == "" {
		return nil, ErrStorageNotConfigured
	}

	endpoint := s.config.Endpoint
	secure := s.config.UseSSL
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid object storage endpoint: %w", err)
		}
		endpoint = u.Host
		secure = secure || u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s.config.AccessKey, s.config.SecretKey, ""),
		Secure: secure,
		Region: s.config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return client, nil
}
