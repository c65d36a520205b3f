package nodes

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/linkflow-ai/workflow-engine/internal/node/contract"
	"github.com/linkflow-ai/workflow-engine/internal/node/registry"
)

func init() {
	registry.Register(NewS3Node)
}

// S3Node uploads or downloads a single object, using the same
// aws-sdk-go-v2 client construction as this codebase's blob offload
// store, but configured per-invocation from node parameters rather than
// process-wide config.
type S3Node struct{}

func NewS3Node() contract.Node { return &S3Node{} }

func (n *S3Node) TypeName() string            { return "s3" }
func (n *S3Node) Category() contract.Category { return contract.CategoryAction }
func (n *S3Node) Subcategory() contract.Subcategory {
	return contract.SubcategoryStorage
}
func (n *S3Node) RequiredCredentialType() string { return "aws" }

func (n *S3Node) Metadata() contract.Metadata {
	return contract.Metadata{
		TypeName:    n.TypeName(),
		Name:        "S3",
		Description: "Upload or download an object in an S3 bucket",
		Category:    contract.CategoryAction,
		Subcategory: contract.SubcategoryStorage,
		Version:     "1.0.0",
		Properties: []contract.PropertyDefinition{
			{Name: "operation", Type: "select", Required: true, Default: "put", Options: []contract.PropertyOption{
				{Label: "Put Object", Value: "put"}, {Label: "Get Object", Value: "get"},
			}},
			{Name: "region", Type: "string", Required: true},
			{Name: "bucket", Type: "string", Required: true},
			{Name: "key", Type: "string", Required: true},
			{Name: "content_base64", Type: "string", Description: "Object body, base64-encoded (for put)"},
		},
		RequiredCredentialType: "aws",
	}
}

func (n *S3Node) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{
		"operation": map[string]interface{}{"type": "string", "enum": []string{"put", "get"}},
		"region":    map[string]interface{}{"type": "string", "required": true},
		"bucket":    map[string]interface{}{"type": "string", "required": true},
		"key":       map[string]interface{}{"type": "string", "required": true},
	}
}

func (n *S3Node) ValidateParameters(params map[string]interface{}) error {
	op, _ := params["operation"].(string)
	switch op {
	case "put", "get", "":
	default:
		return fmt.Errorf("s3: unsupported operation %q", op)
	}
	for _, field := range []string{"region", "bucket", "key"} {
		if s, _ := params[field].(string); s == "" {
			return fmt.Errorf("s3: %s is required", field)
		}
	}
	if op == "put" {
		if content, _ := params["content_base64"].(string); content == "" {
			return fmt.Errorf("s3: content_base64 is required for put")
		}
	}
	return nil
}

func (n *S3Node) Execute(ctx context.Context, nodeCtx *contract.Context, params map[string]interface{}) (*contract.Output, error) {
	operation, _ := params["operation"].(string)
	if operation == "" {
		operation = "put"
	}
	region, _ := params["region"].(string)
	bucket, _ := params["bucket"].(string)
	key, _ := params["key"].(string)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("s3: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)

	switch operation {
	case "put":
		encoded, _ := params["content_base64"].(string)
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("s3: decoding content_base64: %w", err)
		}
		_, err = client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   strings.NewReader(string(raw)),
		})
		if err != nil {
			return contract.Failure(fmt.Sprintf("s3: %v", err)), nil
		}
		return contract.Success(map[string]interface{}{"bucket": bucket, "key": key, "bytes": len(raw)}), nil

	default: // get
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return contract.Failure(fmt.Sprintf("s3: %v", err)), nil
		}
		defer out.Body.Close()
		buf := new(strings.Builder)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, fmt.Errorf("s3: reading object: %w", err)
		}
		return contract.Success(map[string]interface{}{
			"bucket":         bucket,
			"key":            key,
			"content_base64": base64.StdEncoding.EncodeToString([]byte(buf.String())),
		}), nil
	}
}
