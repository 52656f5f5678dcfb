package trainer

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fluxops-io/fluxops/internal/logging"
)

// s3API is the subset of the S3 client the trainer uses to publish.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// LocalTrainer loads a pre-trained model artifact from disk and
// publishes it to the provisioned object store. Training itself happens
// out of band; this collaborator only hands the pipeline the artifact
// and its recorded metrics.
type LocalTrainer struct {
	ArtifactPath string
	MetricsPath  string
	Version      string

	s3Client s3API
}

func NewLocalTrainer(s3Client *s3.Client, artifactPath, version string) *LocalTrainer {
	return &LocalTrainer{
		ArtifactPath: artifactPath,
		Version:      version,
		s3Client:     s3Client,
	}
}

// Train reads the artifact bytes from disk. With no artifact path
// configured it emits a small placeholder so a pipeline can run
// end to end before a real model exists.
func (t *LocalTrainer) Train(ctx context.Context) ([]byte, map[string]float64, error) {
	if t.ArtifactPath == "" {
		placeholder := []byte("placeholder-model\n")
		logging.Warn("no model artifact configured, using placeholder")
		return placeholder, map[string]float64{"artifact_bytes": float64(len(placeholder))}, nil
	}

	artifact, err := os.ReadFile(t.ArtifactPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read model artifact %s: %w", t.ArtifactPath, err)
	}

	metrics := map[string]float64{
		"artifact_bytes": float64(len(artifact)),
	}

	logging.Info("model artifact loaded", "path", t.ArtifactPath, "bytes", len(artifact))
	return artifact, metrics, nil
}

// Publish uploads the artifact to the object store described by
// storeOutputs and returns the artifact URI. The store unit's outputs
// must carry the bucket name.
func (t *LocalTrainer) Publish(ctx context.Context, artifact []byte, storeOutputs map[string]any) (string, error) {
	bucket, _ := storeOutputs["bucket"].(string)
	if bucket == "" {
		bucket, _ = storeOutputs["name"].(string)
	}
	if bucket == "" {
		return "", fmt.Errorf("object store outputs carry no bucket name")
	}

	version := t.Version
	if version == "" {
		version = "v1"
	}
	key := fmt.Sprintf("models/model_%s.pkl", version)

	_, err := t.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(artifact),
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish model to s3://%s/%s: %w", bucket, key, err)
	}

	uri := fmt.Sprintf("s3://%s/%s", bucket, key)
	logging.Info("model artifact published", "uri", uri)
	return uri, nil
}
