// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/bacx00/mrvl-livescore/pkg/constants"
	"github.com/bacx00/mrvl-livescore/pkg/envelope"
	"github.com/bacx00/mrvl-livescore/pkg/models"
)

const archiveSinkName = "archive"

// ObjectPutter is the part of *s3.Client the archiver uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ArchiveConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds a client for AWS S3 or, with an endpoint, any S3 compatible store.
func NewS3Client(ctx context.Context, cfg ArchiveConfig) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("invalid archive configuration: bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: region}, nil
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	return s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	}), nil
}

// Archiver stores snapshots of completed matches as JSON objects.
type Archiver struct {
	client ObjectPutter
	bucket string
}

func NewArchiver(client ObjectPutter, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket}
}

func (a *Archiver) Name() string {
	return archiveSinkName
}

// Deliver ignores snapshots of matches that are not completed.
func (a *Archiver) Deliver(scope *envelope.Scope, snapshot *models.Snapshot) error {
	if snapshot.Match.Status != models.StatusCompleted {
		return nil
	}

	body, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	key := ArchiveKey(snapshot)
	_, err = a.client.PutObject(scope.Ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot (key: %s): %w", key, err)
	}

	scope.Log.WithFields(logrus.Fields{
		constants.LogFieldMatchID: snapshot.MatchID,
		constants.LogFieldVersion: snapshot.Version,
		"key":                     key,
	}).Info("completed match archived")

	return nil
}

func ArchiveKey(snapshot *models.Snapshot) string {
	return fmt.Sprintf("matches/%s/v%06d.json", snapshot.MatchID, snapshot.Version)
}
