package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"dms/internal/dms"
)

// S3Config describes how to reach a versioned S3 bucket.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // for MinIO, Localstack and other S3-compatible stores
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PartSize        int64 // upload manager part size for single-shot puts
}

// S3Gateway implements dms.Gateway on Amazon S3. The bucket must have
// versioning enabled so every put yields an addressable object version.
type S3Gateway struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	http     *http.Client
	bucket   string
	prefix   string
}

// NewS3Client builds an S3 client from cfg, falling back to the default
// credential chain when no static keys are given.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// NewS3Gateway wraps client for the configured bucket.
func NewS3Gateway(client *s3.Client, cfg S3Config) (*S3Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSize > 0 {
			u.PartSize = cfg.PartSize
		}
	})
	return &S3Gateway{
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: uploader,
		http:     &http.Client{Timeout: 5 * time.Minute},
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func (g *S3Gateway) objectKey(key string) string {
	return g.prefix + key
}

func optionalVersion(versionID string) *string {
	if versionID == "" {
		return nil
	}
	return aws.String(versionID)
}

// copySource encodes "bucket/key?versionId=v" as CopyObject expects.
func (g *S3Gateway) copySource(key, versionID string) string {
	segments := strings.Split(g.bucket+"/"+g.objectKey(key), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	src := strings.Join(segments, "/")
	if versionID != "" {
		src += "?versionId=" + url.QueryEscape(versionID)
	}
	return src
}

func storageClass(tier dms.StorageTier) types.StorageClass {
	if tier == dms.TierCold {
		return types.StorageClassGlacier
	}
	return types.StorageClassStandard
}

func mapS3Err(err error, key, versionID string) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s@%s: %v", ErrObjectNotFound, key, versionID, err)
	}
	var invalid *types.InvalidObjectState
	if errors.As(err, &invalid) {
		return fmt.Errorf("%w: %s@%s: %v", ErrInvalidObjectState, key, versionID, err)
	}
	return err
}

func apiErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

// Put uploads r through the transfer manager.
func (g *S3Gateway) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(g.bucket),
		Key:           aws.String(g.objectKey(key)),
		Body:          r,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	out, err := g.uploader.Upload(ctx, in)
	if err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return aws.ToString(out.VersionID), nil
}

// Get opens one object version.
func (g *S3Gateway) Get(ctx context.Context, key, versionID string) (io.ReadCloser, error) {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:    aws.String(g.bucket),
		Key:       aws.String(g.objectKey(key)),
		VersionId: optionalVersion(versionID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", mapS3Err(err, key, versionID))
	}
	return out.Body, nil
}

func (g *S3Gateway) copyObject(ctx context.Context, srcKey, srcVersionID, dstKey string, tier dms.StorageTier) (string, error) {
	out, err := g.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(g.bucket),
		Key:               aws.String(g.objectKey(dstKey)),
		CopySource:        aws.String(g.copySource(srcKey, srcVersionID)),
		StorageClass:      storageClass(tier),
		MetadataDirective: types.MetadataDirectiveCopy,
	})
	if err != nil {
		return "", fmt.Errorf("failed to copy object: %w", mapS3Err(err, srcKey, srcVersionID))
	}
	return aws.ToString(out.VersionId), nil
}

// CopyWithTier rewrites an object version in place with a new storage class.
func (g *S3Gateway) CopyWithTier(ctx context.Context, key, versionID string, tier dms.StorageTier) (string, error) {
	return g.copyObject(ctx, key, versionID, key, tier)
}

// Copy duplicates an object version to dstKey in the standard class.
func (g *S3Gateway) Copy(ctx context.Context, srcKey, srcVersionID, dstKey string) (string, error) {
	return g.copyObject(ctx, srcKey, srcVersionID, dstKey, dms.TierStandard)
}

// Delete permanently removes one object version. S3 reports success for
// versions that are already gone.
func (g *S3Gateway) Delete(ctx context.Context, key, versionID string) error {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:    aws.String(g.bucket),
		Key:       aws.String(g.objectKey(key)),
		VersionId: optionalVersion(versionID),
	})
	if err != nil {
		err = mapS3Err(err, key, versionID)
		if errors.Is(err, ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// RequestColdRestore starts a Glacier retrieval. A restore already in
// progress is not an error.
func (g *S3Gateway) RequestColdRestore(ctx context.Context, key, versionID string, days int) error {
	_, err := g.client.RestoreObject(ctx, &s3.RestoreObjectInput{
		Bucket:    aws.String(g.bucket),
		Key:       aws.String(g.objectKey(key)),
		VersionId: optionalVersion(versionID),
		RestoreRequest: &types.RestoreRequest{
			Days: aws.Int32(int32(days)),
			GlacierJobParameters: &types.GlacierJobParameters{
				Tier: types.TierStandard,
			},
		},
	})
	if err != nil {
		if apiErrorCode(err) == "RestoreAlreadyInProgress" {
			return nil
		}
		return fmt.Errorf("failed to restore object: %w", mapS3Err(err, key, versionID))
	}
	return nil
}

// ColdRestoreReady inspects the x-amz-restore header of the object version.
func (g *S3Gateway) ColdRestoreReady(ctx context.Context, key, versionID string) (bool, error) {
	out, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:    aws.String(g.bucket),
		Key:       aws.String(g.objectKey(key)),
		VersionId: optionalVersion(versionID),
	})
	if err != nil {
		return false, fmt.Errorf("failed to head object: %w", mapS3Err(err, key, versionID))
	}
	switch out.StorageClass {
	case types.StorageClassGlacier, types.StorageClassDeepArchive:
	default:
		return true, nil
	}
	return restoreFinished(aws.ToString(out.Restore)), nil
}

// restoreFinished parses header values like
// `ongoing-request="false", expiry-date="Fri, 21 Dec 2012 00:00:00 GMT"`.
func restoreFinished(header string) bool {
	return strings.Contains(header, `ongoing-request="false"`)
}

// BeginMultipart creates a multipart upload.
func (g *S3Gateway) BeginMultipart(ctx context.Context, key, contentType string) (string, error) {
	in := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(g.objectKey(key)),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	out, err := g.client.CreateMultipartUpload(ctx, in)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload: %w", err)
	}
	return aws.ToString(out.UploadId), nil
}

// PartURL presigns an UploadPart request.
func (g *S3Gateway) PartURL(ctx context.Context, key, uploadID string, partNumber int, expiry time.Duration) (string, error) {
	req, err := g.presign.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(g.bucket),
		Key:        aws.String(g.objectKey(key)),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(int32(partNumber)),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign part %d: %w", partNumber, err)
	}
	return req.URL, nil
}

// WritePart PUTs a part to a presigned URL.
func (g *S3Gateway) WritePart(ctx context.Context, partURL string, r io.Reader, size int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, partURL, r)
	if err != nil {
		return "", fmt.Errorf("building part request: %w", err)
	}
	req.ContentLength = size

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading part: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("uploading part: unexpected status %s", resp.Status)
	}
	return resp.Header.Get("ETag"), nil
}

// CompleteMultipart assembles the uploaded parts.
func (g *S3Gateway) CompleteMultipart(ctx context.Context, key, uploadID string, parts []dms.CompletedPart) (string, error) {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(int32(p.Number)),
		}
	}
	out, err := g.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(g.bucket),
		Key:             aws.String(g.objectKey(key)),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		var noUpload *types.NoSuchUpload
		if errors.As(err, &noUpload) {
			return "", fmt.Errorf("%w: %s", ErrUploadNotFound, uploadID)
		}
		return "", fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	return aws.ToString(out.VersionId), nil
}

// AbortMultipart aborts an upload. Unknown uploads are ignored.
func (g *S3Gateway) AbortMultipart(ctx context.Context, key, uploadID string) error {
	_, err := g.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(g.bucket),
		Key:      aws.String(g.objectKey(key)),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		var noUpload *types.NoSuchUpload
		if errors.As(err, &noUpload) {
			return nil
		}
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}
	return nil
}

// Compile-time checks
var (
	_ dms.Gateway = (*S3Gateway)(nil)
	_ PartWriter  = (*S3Gateway)(nil)
)
