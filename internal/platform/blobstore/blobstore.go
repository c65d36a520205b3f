// Package blobstore offloads oversized NodeExecution input/output payloads
// to S3 so the relational Store never has to hold arbitrarily large JSON
// blobs inline. Grounded on this codebase's S3 integration node
// (internal/node/runtime/nodes/s3_node.go) for the aws-sdk-go-v2 client
// setup; the offload/inline threshold decision itself is new, since
// its Store capability never bounds payload size.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/linkflow-ai/workflow-engine/internal/platform/config"
)

// Store offloads large payloads to S3 and returns a small reference in
// their place. A payload under the configured inline threshold is left
// untouched by Offload.
type Store struct {
	client         *s3.Client
	bucket         string
	inlineMaxBytes int
}

// Reference is what gets stored in the database in place of an offloaded
// payload; Inflate recognizes it by the presence of "$blobRef".
type Reference struct {
	Ref  string `json:"$blobRef"`
	Size int    `json:"size"`
}

const refMarker = "$blobRef"

// New builds a Store from S3Config. Returns nil, nil if S3 is disabled —
// callers treat a nil Store as "offload is not available."
func New(ctx context.Context, cfg config.S3Config) (*Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}

	inline := cfg.InlineMaxBytes
	if inline <= 0 {
		inline = 256 * 1024
	}

	return &Store{
		client:         s3.NewFromConfig(awsCfg, opts...),
		bucket:         cfg.Bucket,
		inlineMaxBytes: inline,
	}, nil
}

// Offload marshals payload and, if it exceeds the inline threshold,
// uploads it to S3 and returns a Reference to store instead. Small
// payloads pass through unchanged.
func (s *Store) Offload(ctx context.Context, keyPrefix string, payload map[string]interface{}) (map[string]interface{}, error) {
	if s == nil || payload == nil {
		return payload, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if len(data) <= s.inlineMaxBytes {
		return payload, nil
	}

	sum := sha256.Sum256(data)
	key := fmt.Sprintf("%s/%s.json", keyPrefix, hex.EncodeToString(sum[:8]))

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("upload offloaded payload: %w", err)
	}

	return map[string]interface{}{
		refMarker: key,
		"size":    len(data),
	}, nil
}

// Inflate reverses Offload: if payload is a Reference, it downloads and
// unmarshals the original map; otherwise it returns payload unchanged.
func (s *Store) Inflate(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	if s == nil || payload == nil {
		return payload, nil
	}
	ref, ok := payload[refMarker].(string)
	if !ok {
		return payload, nil
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("download offloaded payload: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read offloaded payload: %w", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal offloaded payload: %w", err)
	}
	return out, nil
}
