// Package lambdaboot holds the cold-start helpers shared by the binaries:
// AWS config, the upload store, the Gemini API key from SSM, and the
// collaborators the HTTP surface needs.
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/tennis-analyzer/internal/auth"
	"github.com/fpang/tennis-analyzer/internal/chat"
	"github.com/fpang/tennis-analyzer/internal/logging"
	"github.com/fpang/tennis-analyzer/internal/s3util"
)

const (
	// BucketEnvVar names the bucket that receives uploads.
	BucketEnvVar = "MEDIA_BUCKET_NAME"
	// DefaultAPIKeyParam is the SSM parameter holding the Gemini API key.
	DefaultAPIKeyParam = "/tennis-analyzer/prod/gemini-api-key"
)

// AWSClients holds the core AWS SDK clients.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with an SSM client.
func InitAWS(ctx context.Context) AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitStore creates the upload store for bucket, falling back to the
// MEDIA_BUCKET_NAME environment variable. Fatals if neither is set.
func InitStore(cfg aws.Config, bucket string) *s3util.Store {
	if bucket == "" {
		bucket = os.Getenv(BucketEnvVar)
	}
	if bucket == "" {
		log.Fatal().Str("envVar", BucketEnvVar).Msg("Bucket is required")
	}
	return s3util.NewStore(s3.NewFromConfig(cfg), bucket)
}

// ParameterGetter is the slice of the SSM API used to load secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// APIKeyParam returns SSM_API_KEY_PARAM if set, else DefaultAPIKeyParam.
func APIKeyParam() string {
	return logging.EnvOrDefault("SSM_API_KEY_PARAM", DefaultAPIKeyParam)
}

// LoadGeminiKey sets GEMINI_API_KEY from SSM Parameter Store unless it is
// already set.
func LoadGeminiKey(ctx context.Context, params ParameterGetter) error {
	if os.Getenv("GEMINI_API_KEY") != "" {
		return nil
	}
	paramName := APIKeyParam()
	start := time.Now()
	result, err := params.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to read API key from SSM parameter %s: %w", paramName, err)
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return fmt.Errorf("SSM parameter %s is empty", paramName)
	}
	os.Setenv("GEMINI_API_KEY", aws.ToString(result.Parameter.Value))
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(start)).Msg("Gemini API key loaded from SSM")
	return nil
}

// IngestMaxWait returns INGEST_MAX_WAIT parsed as a duration, or
// chat.DefaultMaxWait when unset or invalid.
func IngestMaxWait() time.Duration {
	raw := os.Getenv("INGEST_MAX_WAIT")
	if raw == "" {
		return chat.DefaultMaxWait
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Warn().Str("value", raw).Msg("Invalid INGEST_MAX_WAIT, using default")
		return chat.DefaultMaxWait
	}
	return d
}

// Gemini bundles the Gemini-backed collaborators of the HTTP surface.
type Gemini struct {
	Client   *genai.Client
	Ingester *chat.Ingester
	Invoker  *chat.Invoker
}

// InitGemini resolves the API key, creates the client, and builds the
// ingester and invoker. When validate is set, the key is checked with a
// minimal request first.
func InitGemini(ctx context.Context, validate bool) (*Gemini, error) {
	apiKey, err := auth.GetAPIKey()
	if err != nil {
		return nil, err
	}
	client, err := chat.NewGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if validate {
		if err := auth.ValidateAPIKey(ctx, client.Models, chat.StrokeModelName()); err != nil {
			return nil, err
		}
	}
	return &Gemini{
		Client:   client,
		Ingester: chat.NewIngester(chat.NewFileService(client), chat.WithMaxWait(IngestMaxWait())),
		Invoker:  chat.NewInvoker(client.Models),
	}, nil
}

// StartupLog returns a startup logger pre-filled with the init duration and
// the configured models.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).
		InitDuration(time.Since(initStart)).
		Model(chat.StrokeCounting.String(), chat.StrokeModelName()).
		Model(chat.TechniqueBreakdown.String(), chat.TechniqueModelName()).
		Config("ingestMaxWait", IngestMaxWait().String())
}
