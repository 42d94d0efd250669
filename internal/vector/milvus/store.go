package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/crosslink/backend/pkg/logger"
)

// Store keeps article embeddings durable across restarts. Similarity math
// runs in-process over exact vectors, so the collection is used as a
// key/value fetch by article ID rather than an ANN search surface.
type Store struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewStore(endpoint, collectionName string, vectorDim int) (*Store, error) {
	c, err := client.NewGrpcClient(
		context.Background(),
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus store initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Store{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) EnsureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", s.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collectionName,
		Description:    "Article content embeddings",
		Fields: []*entity.Field{
			{
				Name:       "article_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.vectorDim),
				},
			},
			{
				Name:     "updated_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.IP, 1024)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	err = s.client.CreateIndex(ctx, s.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = s.client.LoadCollection(ctx, s.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", s.collectionName))

	return nil
}

func (s *Store) Upsert(ctx context.Context, articleID string, embedding []float32) error {
	if len(embedding) != s.vectorDim {
		return fmt.Errorf("embedding dimension %d does not match collection dimension %d", len(embedding), s.vectorDim)
	}

	// Milvus upsert is delete-then-insert on the primary key.
	expr := fmt.Sprintf(`article_id == "%s"`, articleID)
	if err := s.client.Delete(ctx, s.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete existing embedding: %w", err)
	}

	_, err := s.client.Insert(
		ctx,
		s.collectionName,
		"",
		entity.NewColumnVarChar("article_id", []string{articleID}),
		entity.NewColumnFloatVector("embedding", s.vectorDim, [][]float32{embedding}),
		entity.NewColumnInt64("updated_at", []int64{time.Now().Unix()}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}

	err = s.client.Flush(ctx, s.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Debug("Embedding persisted", zap.String("article_id", articleID))

	return nil
}

func (s *Store) Fetch(ctx context.Context, articleID string) ([]float32, bool, error) {
	expr := fmt.Sprintf(`article_id == "%s"`, articleID)

	results, err := s.client.Query(
		ctx,
		s.collectionName,
		[]string{},
		expr,
		[]string{"embedding"},
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query embedding: %w", err)
	}

	for _, col := range results {
		vectors, ok := col.(*entity.ColumnFloatVector)
		if !ok || vectors.Len() == 0 {
			continue
		}
		return vectors.Data()[0], true, nil
	}

	return nil, false, nil
}

func (s *Store) Delete(ctx context.Context, articleID string) error {
	expr := fmt.Sprintf(`article_id == "%s"`, articleID)
	if err := s.client.Delete(ctx, s.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}
