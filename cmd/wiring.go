package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/JoshuaOlubori/truemeds-v2/internal/blob"
	"github.com/JoshuaOlubori/truemeds-v2/internal/oracle"
	"github.com/JoshuaOlubori/truemeds-v2/internal/pipeline"
	"github.com/JoshuaOlubori/truemeds-v2/internal/store"
	"github.com/JoshuaOlubori/truemeds-v2/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "truemeds.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initBlobs(ctx context.Context) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case "fs":
		return blob.NewFS(cfg.Blob.Dir, cfg.Blob.PublicBaseURL)
	case "s3":
		return blob.NewS3(ctx, blob.S3Config{
			Endpoint:      cfg.Blob.Endpoint,
			Bucket:        cfg.Blob.Bucket,
			AccessKey:     cfg.Blob.AccessKey,
			SecretKey:     cfg.Blob.SecretKey,
			UseSSL:        cfg.Blob.UseSSL,
			PublicBaseURL: cfg.Blob.PublicBaseURL,
		})
	default:
		return nil, eris.Errorf("unsupported blob backend: %s", cfg.Blob.Backend)
	}
}

func initClassifier() (oracle.Classifier, error) {
	if cfg.Oracle.Key == "" {
		return nil, eris.New("oracle API key is required (TRUEMEDS_ORACLE_KEY)")
	}
	return oracle.NewAdapter(anthropic.NewClient(cfg.Oracle.Key), oracle.Config{
		Model:            cfg.Oracle.Model,
		MaxTokens:        cfg.Oracle.MaxTokens,
		Timeout:          time.Duration(cfg.Oracle.TimeoutSecs) * time.Second,
		FailureThreshold: cfg.Oracle.FailureThreshold,
		ResetTimeout:     time.Duration(cfg.Oracle.ResetTimeoutSecs) * time.Second,
	}), nil
}

func initPipeline(ctx context.Context) (*pipeline.Pipeline, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	blobs, err := initBlobs(ctx)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	classifier, err := initClassifier()
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	p := pipeline.New(st, blobs, classifier, pipeline.Config{
		MaxImageBytes: int(cfg.Pipeline.MaxImageMB * 1024 * 1024),
	})
	return p, st, nil
}
