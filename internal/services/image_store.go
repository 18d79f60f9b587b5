package services

import (
	"fmt"
	"strings"
	"time"

	"labelens-backend/config"

	"github.com/aliyun/alibaba-cloud-sdk-go/services/sts"
	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

// Image storage is a collaborator of the analysis core, not part of it: the
// orchestrator only ever sees the resulting URL.

// ImageUploader stores a label image and returns its public URL.
type ImageUploader interface {
	UploadImage(localPath string) (string, error)
}

type OSSImageStore struct {
	config *config.Config
}

func NewOSSImageStore() *OSSImageStore {
	cfg, _ := config.LoadConfig()
	return &OSSImageStore{config: cfg}
}

// UploadImage puts a label image into the bucket under a collision-safe key
// and returns the public URL handed to the vision call.
func (s *OSSImageStore) UploadImage(localPath string) (string, error) {
	client, err := oss.New(
		s.config.OSSEndpoint,
		s.config.OSSAccessKeyID,
		s.config.OSSAccessKeySecret,
		oss.Timeout(60, 120), // Connect timeout 60s, Read/Write timeout 120s
	)
	if err != nil {
		return "", fmt.Errorf("failed to create OSS client: %v", err)
	}

	bucket, err := client.Bucket(s.config.OSSBucketName)
	if err != nil {
		return "", fmt.Errorf("failed to get bucket: %v", err)
	}

	ext := ""
	if idx := strings.LastIndex(localPath, "."); idx != -1 {
		ext = localPath[idx:]
	}
	now := time.Now()
	// Structure: labels/2026/08/uuid.ext
	objectKey := fmt.Sprintf("labels/%d/%02d/%s%s",
		now.Year(), now.Month(), uuid.New().String(), ext)

	if err := bucket.PutObjectFromFile(objectKey, localPath); err != nil {
		return "", fmt.Errorf("upload failed: %v", err)
	}

	endpoint := s.config.OSSEndpoint
	if !strings.HasPrefix(endpoint, "http") {
		endpoint = "https://" + endpoint
	}

	parts := strings.SplitN(endpoint, "://", 2)
	return fmt.Sprintf("%s://%s.%s/%s", parts[0], s.config.OSSBucketName, parts[1], objectKey), nil
}

type STSCredentials struct {
	AccessKeyId     string `json:"accessKeyId"`
	AccessKeySecret string `json:"accessKeySecret"`
	SecurityToken   string `json:"securityToken"`
	Expiration      string `json:"expiration"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
}

// GetOSSTSToken issues short-lived credentials so the web client can upload
// label images straight to the bucket without routing bytes through us.
func GetOSSTSToken() (*STSCredentials, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// STS client requires region ID without the "oss-" prefix
	stsRegion := cfg.OSSRegion
	if after, ok := strings.CutPrefix(stsRegion, "oss-"); ok {
		stsRegion = after
	}

	client, err := sts.NewClientWithAccessKey(stsRegion, cfg.OSSAccessKeyID, cfg.OSSAccessKeySecret)
	if err != nil {
		return nil, err
	}

	request := sts.CreateAssumeRoleRequest()
	request.Scheme = "https"
	request.RoleArn = cfg.OSSRoleArn
	request.RoleSessionName = "labelens-session"
	request.DurationSeconds = "3600" // 1 hour

	response, err := client.AssumeRole(request)
	if err != nil {
		return nil, err
	}

	return &STSCredentials{
		AccessKeyId:     response.Credentials.AccessKeyId,
		AccessKeySecret: response.Credentials.AccessKeySecret,
		SecurityToken:   response.Credentials.SecurityToken,
		Expiration:      response.Credentials.Expiration,
		Region:          cfg.OSSRegion,
		Bucket:          cfg.OSSBucketName,
	}, nil
}
