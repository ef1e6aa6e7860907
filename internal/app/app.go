// Package app assembles the services from configuration. Both the Lambda
// entry point and the local server build on it.
package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"fairstay-backend/handler"
	"fairstay-backend/internal/config"
	"fairstay-backend/internal/integrations/inference"
	"fairstay-backend/internal/integrations/objectstore"
	"fairstay-backend/internal/integrations/paramstore"
	"fairstay-backend/internal/repository"
	"fairstay-backend/internal/usecase"
)

type App struct {
	Handler *handler.Handler
	Records *repository.Client
}

// TablesFor resolves table names from the namespace and per-table overrides.
func TablesFor(cfg *config.Config) repository.Tables {
	t := repository.TablesFromPrefix(cfg.TablePrefix)
	if cfg.SessionsTable != "" {
		t.Sessions = cfg.SessionsTable
	}
	if cfg.ImagesTable != "" {
		t.Images = cfg.ImagesTable
	}
	if cfg.SurveyTable != "" {
		t.Surveys = cfg.SurveyTable
	}
	return t
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("app: load AWS config: %w", err)
	}

	records, err := repository.New(
		awsdynamodb.NewFromConfig(awsCfg),
		TablesFor(cfg),
		repository.WithTableCreation(cfg.CreateTables),
	)
	if err != nil {
		return nil, fmt.Errorf("app: record store: %w", err)
	}

	s3Client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		o.Region = cfg.Region()
	})
	objects, err := objectstore.New(
		s3Client,
		awss3.NewPresignClient(s3Client),
		cfg.BucketName,
		cfg.Region(),
		objectstore.WithUploadURLTTL(cfg.UploadURLTTL),
		objectstore.WithDownloadURLTTL(cfg.DownloadURLTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("app: object store: %w", err)
	}

	inferenceOpts := []inference.Option{inference.WithTimeout(cfg.InferenceTimeout)}
	if name := cfg.InferenceTokenParam(); name != "" {
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("app: parameter store: %w", err)
		}
		token, err := paramstore.NewToken(params, name)
		if err != nil {
			return nil, fmt.Errorf("app: inference token: %w", err)
		}
		inferenceOpts = append(inferenceOpts, inference.WithTokenSource(token))
	}
	detector, err := inference.NewClient(cfg.InferenceURL, inferenceOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: inference client: %w", err)
	}

	sessions, err := usecase.NewSessionService(records)
	if err != nil {
		return nil, err
	}
	images, err := usecase.NewImageService(records, objects, detector)
	if err != nil {
		return nil, err
	}
	share, err := usecase.NewShareService(records, nil, cfg.WebURL)
	if err != nil {
		return nil, err
	}
	surveys, err := usecase.NewSurveyService(records)
	if err != nil {
		return nil, err
	}

	h, err := handler.NewHandler(handler.UseCases{
		Sessions:  sessions,
		Images:    images,
		Share:     share,
		Surveys:   surveys,
		Inference: detector,
	},
		handler.WithMaxUploadBytes(cfg.MaxUploadBytes),
		handler.WithDevelopment(cfg.IsDevelopment()),
	)
	if err != nil {
		return nil, err
	}

	return &App{Handler: h, Records: records}, nil
}
