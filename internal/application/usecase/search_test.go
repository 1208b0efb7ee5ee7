package usecase_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/application/usecase"
	"github.com/mijoai/mijo-gateway/internal/domain/memory"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

func TestSearch_Execute_Success(t *testing.T) {
	repo := &MockMessageRepo{
		searchResults: &repository.SearchResults{
			Authoritative: []*memory.ScoredPoint{
				{Point: memory.Point{ID: "p-1"}, Score: 0.91, Source: memory.SourceAuthoritative},
				{Point: memory.Point{ID: "p-2"}, Score: 0.72, Source: memory.SourceAuthoritative},
			},
			Shadow: []*memory.ScoredPoint{
				{Point: memory.Point{ID: "p-1"}, Score: 0.89, Source: memory.SourceShadow},
			},
		},
	}
	embedder := newMockEmbedder()
	uc := usecase.NewSearchUseCase(repo, embedder, zap.NewNop())

	results, err := uc.Execute(context.Background(), usecase.SearchInput{
		Query:    "كرة القدم",
		TopK:     7,
		MinScore: 0.6,
		RoomID:   "room-1",
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(results.Authoritative) != 2 || len(results.Shadow) != 1 {
		t.Errorf("Expected 2 authoritative and 1 shadow hit, got %d/%d",
			len(results.Authoritative), len(results.Shadow))
	}
	if embedder.lastPrefix != memory.PrefixQuery {
		t.Errorf("Expected query prefix for search, got %q", embedder.lastPrefix)
	}
	if repo.searchLimit != 7 || repo.searchMinScore != 0.6 || repo.searchRoomID != "room-1" {
		t.Errorf("Search parameters lost: limit=%d minScore=%v room=%q",
			repo.searchLimit, repo.searchMinScore, repo.searchRoomID)
	}
}

func TestSearch_Execute_Validation(t *testing.T) {
	uc := usecase.NewSearchUseCase(&MockMessageRepo{}, newMockEmbedder(), zap.NewNop())
	ctx := context.Background()

	if _, err := uc.Execute(ctx, usecase.SearchInput{TopK: 5}); !domainErrors.IsInvalidInput(err) {
		t.Errorf("Expected invalid input for an empty query, got %v", err)
	}
	if _, err := uc.Execute(ctx, usecase.SearchInput{Query: "x", TopK: 0}); !domainErrors.IsInvalidInput(err) {
		t.Errorf("Expected invalid input for topK 0, got %v", err)
	}
	if _, err := uc.Execute(ctx, usecase.SearchInput{Query: "x", TopK: 101}); !domainErrors.IsInvalidInput(err) {
		t.Errorf("Expected invalid input for topK 101, got %v", err)
	}
}

func TestSearch_EmbedFailure(t *testing.T) {
	embedder := newMockEmbedder()
	embedder.err = errors.New("embedding backend down")
	uc := usecase.NewSearchUseCase(&MockMessageRepo{}, embedder, zap.NewNop())

	_, err := uc.Execute(context.Background(), usecase.SearchInput{Query: "x", TopK: 5})

	if err == nil {
		t.Fatal("Expected an error when embedding fails")
	}
	var appErr *domainErrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != domainErrors.CodeProviderError {
		t.Errorf("Expected PROVIDER_ERROR, got %v", err)
	}
}
