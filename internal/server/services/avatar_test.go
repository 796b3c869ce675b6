package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testS3 = S3Settings{
	RootUser:     "minioadmin",
	RootPassword: "minioadmin",
	Bucket:       "avatars",
	Region:       "us-east-1",
	BaseEndpoint: "http://127.0.0.1:9000/",
}

func stubPresign(t *testing.T) {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	origNewPre := newS3PresignClient
	origPut := presignPutObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
		presignPutObject = origPut
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				t.Fatalf("load options fn error: %v", err)
			}
		}
		if lo.Region != "us-east-1" {
			t.Fatalf("region not applied: %q", lo.Region)
		}
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		if opts.BaseEndpoint == nil || *opts.BaseEndpoint != "http://127.0.0.1:9000/" {
			t.Fatalf("BaseEndpoint not applied")
		}
		if !opts.UsePathStyle {
			t.Fatalf("path style not enabled")
		}
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return &s3.PresignClient{}
	}
}

func TestAvatarService_PresignUpload(t *testing.T) {
	stubPresign(t)

	var gotBucket, gotKey string
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		gotBucket, gotKey = *in.Bucket, *in.Key
		var po s3.PresignOptions
		for _, fn := range optFns {
			fn(&po)
		}
		if po.Expires != avatarUploadExpiry {
			t.Fatalf("expiry not applied: %v", po.Expires)
		}
		return &v4.PresignedHTTPRequest{URL: "http://127.0.0.1:9000/avatars/" + *in.Key + "?X-Amz-Signature=abc", Method: "PUT"}, nil
	}

	svc := NewAvatarService(testS3)
	up, err := svc.PresignUpload(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, "avatars", gotBucket)
	assert.Equal(t, gotKey, up.Key)
	assert.Regexp(t, regexp.MustCompile(`^avatars/42/[0-9a-f-]{36}$`), up.Key)
	assert.Contains(t, up.UploadURL, "X-Amz-Signature")
	assert.Equal(t, "http://127.0.0.1:9000/avatars/"+up.Key, up.PublicURL)
	assert.False(t, up.ExpiresAt.IsZero())
}

func TestAvatarService_Errors(t *testing.T) {
	t.Run("config load", func(t *testing.T) {
		stubPresign(t)
		loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
			return aws.Config{}, errors.New("load-fail")
		}
		_, err := NewAvatarService(testS3).PresignUpload(context.Background(), 1)
		assert.EqualError(t, err, "load-fail")
	})

	t.Run("presign", func(t *testing.T) {
		stubPresign(t)
		presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
			return nil, errors.New("presign-fail")
		}
		_, err := NewAvatarService(testS3).PresignUpload(context.Background(), 1)
		assert.EqualError(t, err, "presign-fail")
	})
}
