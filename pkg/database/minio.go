package database

import (
	"context"
	"fmt"
	"time"

	"course_messaging_service/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOClient definition minio client
type MinIOClient struct {
	Client     *minio.Client
	BucketName string
}

// PostPolicyRequest 產生 presigned POST 所需條件
type PostPolicyRequest struct {
	ObjectKey   string
	ContentType string
	MinBytes    int64
	MaxBytes    int64
	Expires     time.Time
}

// NewMinIOConnection create a new minio connection have retry
func NewMinIOConnection(d MinIOConnection) (*MinIOClient, error) {
	var mc *MinIOClient
	var err error

	for i := 1; i <= d.RetryCount; i++ {
		mc, err = NewMinioClient(d.Endpoint, d.User, d.Password, d.BucketName, d.UseSSL)
		if err == nil {
			logger.Log.Info("minIO connected", zap.String("endpoint", d.Endpoint), zap.Int("attempt", i))
			return mc, nil
		}

		logger.Log.Warn("minIO connect failed, retrying...",
			zap.String("endpoint", d.Endpoint), zap.Int("attempt", i), zap.Int("max", d.RetryCount), zap.Error(err))
		time.Sleep(d.RetryInterval * time.Second)
	}

	return mc, err
}

// NewMinioClient create a new minio
func NewMinioClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOClient, error) {
	minioClient, err := minio.New(endpoint,
		&minio.Options{
			Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
			Secure: useSSL,
		})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	ctx := context.Background()
	exists, err := minioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket [%s]: %w", bucketName, err)
	}

	// bucket 不存在時建立
	if !exists {
		if err = minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket [%s]: %w", bucketName, err)
		}
		logger.Log.Info("bucket created", zap.String("bucket", bucketName))
	}

	return &MinIOClient{
		Client:     minioClient,
		BucketName: bucketName,
	}, nil
}

// PresignPostPolicy 產生瀏覽器可直接上傳的 presigned POST, 大小限制由 object store 端再驗一次
func (m *MinIOClient) PresignPostPolicy(ctx context.Context, req PostPolicyRequest) (string, map[string]string, error) {
	policy := minio.NewPostPolicy()
	if err := policy.SetBucket(m.BucketName); err != nil {
		return "", nil, err
	}
	if err := policy.SetKey(req.ObjectKey); err != nil {
		return "", nil, err
	}
	if err := policy.SetExpires(req.Expires.UTC()); err != nil {
		return "", nil, err
	}
	if req.ContentType != "" {
		if err := policy.SetContentType(req.ContentType); err != nil {
			return "", nil, err
		}
	}
	if err := policy.SetContentLengthRange(req.MinBytes, req.MaxBytes); err != nil {
		return "", nil, err
	}

	u, formData, err := m.Client.PresignedPostPolicy(ctx, policy)
	if err != nil {
		return "", nil, fmt.Errorf("presign post policy: %w", err)
	}
	return u.String(), formData, nil
}
