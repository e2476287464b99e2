package providers

import (
	"context"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
)

// CaseSearchProvider is a keyword search engine over case records.
type CaseSearchProvider interface {
	EnsureCollection(ctx context.Context) error
	DropCollection(ctx context.Context) error
	IndexCases(ctx context.Context, records []entities.CaseRecord) (int, error)
	Search(ctx context.Context, query string, limit int) ([]entities.CaseSearchHit, error)
}
