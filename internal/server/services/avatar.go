package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

const avatarUploadExpiry = 15 * time.Minute

// S3Settings locate the avatar bucket on an S3-compatible store.
type S3Settings struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// AvatarUpload is a presigned PUT the client uses to upload an avatar
// directly to object storage. PublicURL is what to store as avatarUrl once
// the upload succeeds.
type AvatarUpload struct {
	Key       string
	UploadURL string
	PublicURL string
	ExpiresAt time.Time
}

type AvatarService struct {
	s3 S3Settings
}

func NewAvatarService(s S3Settings) *AvatarService {
	return &AvatarService{s3: s}
}

func avatarKey(userID int64) string {
	return fmt.Sprintf("avatars/%d/%v", userID, uuid.New())
}

func (s *AvatarService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.s3.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.s3.RootUser,
			s.s3.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.s3.BaseEndpoint)
		// MinIO and friends serve buckets under the path, not a subdomain
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// PresignUpload returns a presigned PUT for a fresh object key owned by
// userID.
func (s *AvatarService) PresignUpload(ctx context.Context, userID int64) (*AvatarUpload, error) {
	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, err
	}

	bucket := s.s3.Bucket
	key := avatarKey(userID)

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(avatarUploadExpiry))
	if err != nil {
		return nil, err
	}

	return &AvatarUpload{
		Key:       key,
		UploadURL: req.URL,
		PublicURL: fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.s3.BaseEndpoint, "/"), bucket, key),
		ExpiresAt: time.Now().Add(avatarUploadExpiry),
	}, nil
}
