package statestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/tee-module-provisioner/interfaces"
)

// S3Backend implements a state backend using Amazon S3 or compatible services.
// It supports both public read-only access and authenticated write access.
// Objects are stored private since the state document carries module keys.
type S3Backend struct {
	client         *s3.S3
	writeClient    *s3.S3
	bucketName     string
	prefix         string
	log            *slog.Logger
	locationURI    string
	hasWriteAccess bool
}

// NewS3Backend creates a new S3 state backend.
// If accessKey and secretKey are provided, the backend will have write access.
// Otherwise, it will be read-only for publicly accessible objects.
func NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	// Format the URI for tracking
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}
	if accessKey != "" {
		uri = fmt.Sprintf("s3://%s:***@%s/%s?region=%s", accessKey, bucketName, prefix, region)
		if endpoint != "" {
			uri += fmt.Sprintf("&endpoint=%s", endpoint)
		}
	}

	// Configure base AWS SDK for read-only public access
	baseCfg := aws.Config{
		Region: aws.String(region),
	}

	if endpoint != "" {
		baseCfg.Endpoint = aws.String(endpoint)
	}

	// Create AWS session for read operations (no credentials required for public buckets)
	baseSess, err := session.NewSession(&baseCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	// Create read-only S3 client
	readClient := s3.New(baseSess)

	// Check if we have write credentials
	hasWriteAccess := accessKey != "" && secretKey != ""
	var writeClient *s3.S3

	if hasWriteAccess {
		// Configure AWS SDK with credentials for write access
		writeCfg := baseCfg.Copy()
		writeCfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")

		// Create AWS session for write operations
		writeSess, err := session.NewSession(writeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS write session: %w", err)
		}

		// Create write-enabled S3 client
		writeClient = s3.New(writeSess)
	} else {
		// No write credentials provided, use the read client for both
		writeClient = readClient
		log.Warn("No S3 credentials provided - write operations may fail unless bucket is public writable")
	}

	return &S3Backend{
		client:         readClient,
		writeClient:    writeClient,
		bucketName:     bucketName,
		prefix:         strings.TrimSuffix(prefix, "/"),
		log:            log,
		locationURI:    uri,
		hasWriteAccess: hasWriteAccess,
	}, nil
}

// FetchState retrieves the deployment state document from S3.
// Returns ErrStateNotFound if no state object exists yet.
func (b *S3Backend) FetchState(ctx context.Context) ([]byte, error) {
	data, err := b.getObject(ctx, b.stateKey())
	if err != nil {
		if isS3NotFound(err) {
			return nil, interfaces.ErrStateNotFound
		}
		return nil, err
	}
	return data, nil
}

// StoreState replaces the deployment state document in S3.
func (b *S3Backend) StoreState(ctx context.Context, data []byte) error {
	return b.putObject(ctx, b.stateKey(), data)
}

// FetchArtifact retrieves an artifact from S3 by its content identifier.
// Returns ErrArtifactNotFound if the object doesn't exist.
func (b *S3Backend) FetchArtifact(ctx context.Context, id interfaces.ArtifactID) ([]byte, error) {
	data, err := b.getObject(ctx, b.artifactKey(id))
	if err != nil {
		if isS3NotFound(err) {
			return nil, interfaces.ErrArtifactNotFound
		}
		return nil, err
	}
	return data, nil
}

// StoreArtifact saves artifact data to S3 and returns its content identifier.
// The identifier is the SHA-256 hash of the data.
func (b *S3Backend) StoreArtifact(ctx context.Context, data []byte) (interfaces.ArtifactID, error) {
	id := interfaces.ComputeArtifactID(data)
	if err := b.putObject(ctx, b.artifactKey(id), data); err != nil {
		return id, err
	}
	return id, nil
}

// getObject fetches a single object from S3. Not-found errors are returned
// unwrapped so callers can map them to the matching sentinel.
func (b *S3Backend) getObject(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})

	if err != nil {
		if isS3NotFound(err) {
			b.log.Debug("Object not found in S3",
				slog.String("bucket", b.bucketName),
				slog.String("key", key),
				slog.Duration("duration", time.Since(start)))
			return nil, err
		}

		b.log.Error("Failed to get object from S3",
			slog.String("bucket", b.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	// Read object body
	data, err := io.ReadAll(result.Body)
	if err != nil {
		b.log.Error("Failed to read object body",
			slog.String("bucket", b.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	b.log.Debug("Fetched object from S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// putObject uploads a single object to S3 using the write client.
func (b *S3Backend) putObject(ctx context.Context, key string, data []byte) error {
	_, err := b.writeClient.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		if !b.hasWriteAccess {
			return fmt.Errorf("failed to upload object to S3 (no write credentials provided): %w", err)
		}
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}

	b.log.Debug("Stored object in S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)))

	return nil
}

// Available checks if the S3 backend is accessible by attempting to head the bucket.
func (b *S3Backend) Available(ctx context.Context) bool {
	start := time.Now()

	// Try to head the bucket to check if it's accessible
	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})

	if err != nil {
		b.log.Warn("S3 backend unavailable",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}

	return true
}

// Name returns a unique identifier for this state backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this state backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

// stateKey generates the S3 object key of the state document.
func (b *S3Backend) stateKey() string {
	if b.prefix == "" {
		return stateFileName
	}
	return path.Join(b.prefix, stateFileName)
}

// artifactKey generates an S3 object key for an artifact ID.
func (b *S3Backend) artifactKey(id interfaces.ArtifactID) string {
	if b.prefix == "" {
		return path.Join(artifactsSubdir, id.String())
	}
	return path.Join(b.prefix, artifactsSubdir, id.String())
}

// isS3NotFound reports whether an S3 error means the object does not exist.
func isS3NotFound(err error) bool {
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404")
}
