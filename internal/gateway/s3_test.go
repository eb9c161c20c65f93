package gateway

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dms/internal/dms"
)

func newTestS3Gateway(t *testing.T, prefix string) *S3Gateway {
	t.Helper()
	client := s3.New(s3.Options{Region: "us-east-1"})
	g, err := NewS3Gateway(client, S3Config{Bucket: "docs", Prefix: prefix})
	require.NoError(t, err)
	return g
}

func TestS3Gateway_CopySource(t *testing.T) {
	g := newTestS3Gateway(t, "prod/")

	assert.Equal(t, "docs/prod/uploads/documents/n1/report%20v2.pdf?versionId=abc%2B1",
		g.copySource("uploads/documents/n1/report v2.pdf", "abc+1"))
	assert.Equal(t, "docs/prod/k.txt", g.copySource("k.txt", ""))
}

func TestS3Gateway_StorageClass(t *testing.T) {
	assert.Equal(t, types.StorageClassGlacier, storageClass(dms.TierCold))
	assert.Equal(t, types.StorageClassStandard, storageClass(dms.TierStandard))
}

func TestRestoreFinished(t *testing.T) {
	assert.True(t, restoreFinished(`ongoing-request="false", expiry-date="Fri, 21 Dec 2012 00:00:00 GMT"`))
	assert.False(t, restoreFinished(`ongoing-request="true"`))
	assert.False(t, restoreFinished(""))
}

func TestNewS3Gateway_RequiresBucket(t *testing.T) {
	_, err := NewS3Gateway(s3.New(s3.Options{Region: "us-east-1"}), S3Config{})
	assert.Error(t, err)

	_, err = NewS3Gateway(nil, S3Config{Bucket: "docs"})
	assert.Error(t, err)
}
