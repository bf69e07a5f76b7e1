package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Config holds configuration for the DynamoDB backend.
type Config struct {
	// Region is the AWS region. Default: "us-east-1"
	Region string

	// Endpoint overrides the service endpoint, e.g. DynamoDB Local.
	Endpoint string

	// TablePrefix is prepended to every collection name to form the table name.
	// Default: "entityhub_"
	TablePrefix string

	// CreateTables creates a missing table (on-demand billing, hash key "id")
	// the first time its collection is requested.
	CreateTables bool

	// TableWait bounds how long to wait for a created table to become active.
	// Default: 2m
	TableWait time.Duration
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		Region:       "us-east-1",
		TablePrefix:  "entityhub_",
		CreateTables: true,
		TableWait:    2 * time.Minute,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.TablePrefix == "" {
		c.TablePrefix = "entityhub_"
	}
	if c.TableWait <= 0 {
		c.TableWait = 2 * time.Minute
	}
}

// NewClient builds a DynamoDB client from the default AWS credential chain.
// With an Endpoint set and no credentials in the environment, static dummy
// credentials are used so DynamoDB Local accepts the requests.
func NewClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	cfg.validate()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.Endpoint != "" {
		if awsCfg.Credentials == nil {
			awsCfg.Credentials = credentials.NewStaticCredentialsProvider("local", "local", "")
		} else if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
			awsCfg.Credentials = credentials.NewStaticCredentialsProvider("local", "local", "")
		}
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}
