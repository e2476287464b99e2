package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"golang.org/x/sync/errgroup"

	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/entities"
	"github.com/Tsili-spec/CareChat-DSWB-sub000/internal/domain/providers"
	tsclient "github.com/Tsili-spec/CareChat-DSWB-sub000/internal/infrastructure/clients/typesense"
	apperrors "github.com/Tsili-spec/CareChat-DSWB-sub000/pkg/errors"
)

// CaseRecordsCollection is the Typesense collection holding the corpus.
const CaseRecordsCollection = "case_records"

const (
	queryBy       = "diagnosis,symptoms,summary,searchable_text"
	upsertWorkers = 8
)

// caseDocument is the indexed form of a case record.
type caseDocument struct {
	ID             string   `json:"id"`
	Diagnosis      string   `json:"diagnosis"`
	Symptoms       []string `json:"symptoms"`
	Summary        string   `json:"summary,omitempty"`
	SearchableText string   `json:"searchable_text"`
	Age            int      `json:"age,omitempty"`
	Gender         string   `json:"gender,omitempty"`
}

// TypesenseAdapter implements case keyword search using Typesense
type TypesenseAdapter struct {
	client     *tsclient.Client
	collection string
}

var _ providers.CaseSearchProvider = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense adapter over the case_records collection
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client, collection: CaseRecordsCollection}
}

func caseRecordsSchema(name string) *api.CollectionSchema {
	return &api.CollectionSchema{
		Name: name,
		Fields: []api.Field{
			{Name: "id", Type: "string"},
			{Name: "diagnosis", Type: "string", Facet: pointer.True()},
			{Name: "symptoms", Type: "string[]"},
			{Name: "summary", Type: "string", Optional: pointer.True()},
			{Name: "searchable_text", Type: "string"},
			{Name: "age", Type: "int32", Optional: pointer.True()},
			{Name: "gender", Type: "string", Facet: pointer.True(), Optional: pointer.True()},
		},
	}
}

// EnsureCollection creates the collection unless it already exists
func (a *TypesenseAdapter) EnsureCollection(ctx context.Context) error {
	_, err := a.client.Client().Collection(a.collection).Retrieve(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return apperrors.NewExternalError("failed to retrieve typesense collection", err)
	}

	if _, err := a.client.Client().Collections().Create(ctx, caseRecordsSchema(a.collection)); err != nil {
		return apperrors.NewExternalError("failed to create typesense collection", err)
	}
	log.Info().Str("collection", a.collection).Msg("Created Typesense collection")
	return nil
}

// DropCollection deletes the collection. A missing collection is not an error.
func (a *TypesenseAdapter) DropCollection(ctx context.Context) error {
	_, err := a.client.Client().Collection(a.collection).Delete(ctx)
	if err != nil && !isNotFound(err) {
		return apperrors.NewExternalError("failed to drop typesense collection", err)
	}
	return nil
}

// IndexCases upserts every record and returns how many were written. The
// first failure stops the remaining uploads.
func (a *TypesenseAdapter) IndexCases(ctx context.Context, records []entities.CaseRecord) (int, error) {
	var indexed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(upsertWorkers)

	for i := range records {
		doc := toDocument(&records[i])
		g.Go(func() error {
			if _, err := a.client.Client().Collection(a.collection).Documents().Upsert(gctx, doc); err != nil {
				return fmt.Errorf("failed to index case %s: %w", doc.ID, err)
			}
			indexed.Add(1)
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return int(indexed.Load()), apperrors.NewExternalError("case indexing failed", err)
	}
	return int(indexed.Load()), nil
}

// Search runs a keyword query over diagnosis, symptoms and case text
func (a *TypesenseAdapter) Search(ctx context.Context, query string, limit int) ([]entities.CaseSearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	params := &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String(queryBy),
		PerPage: pointer.Int(limit),
	}

	result, err := a.client.Client().Collection(a.collection).Documents().Search(ctx, params)
	if err != nil {
		return nil, apperrors.NewExternalError("case search failed", err)
	}
	if result.Hits == nil {
		return []entities.CaseSearchHit{}, nil
	}

	hits := make([]entities.CaseSearchHit, 0, len(*result.Hits))
	for _, hit := range *result.Hits {
		if hit.Document == nil {
			continue
		}
		record, err := fromDocument(*hit.Document)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping malformed search hit")
			continue
		}
		h := entities.CaseSearchHit{Record: record}
		if hit.TextMatch != nil {
			h.Score = float64(*hit.TextMatch)
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func toDocument(r *entities.CaseRecord) caseDocument {
	symptoms := r.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}
	return caseDocument{
		ID:             r.ID,
		Diagnosis:      r.Diagnosis,
		Symptoms:       symptoms,
		Summary:        r.Summary,
		SearchableText: r.SearchableText,
		Age:            r.Age,
		Gender:         r.Gender,
	}
}

func fromDocument(doc map[string]interface{}) (*entities.CaseRecord, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var d caseDocument
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	if d.ID == "" {
		return nil, errors.New("document has no id")
	}
	return &entities.CaseRecord{
		ID:             d.ID,
		Age:            d.Age,
		Gender:         d.Gender,
		Diagnosis:      d.Diagnosis,
		Symptoms:       d.Symptoms,
		Summary:        d.Summary,
		SearchableText: d.SearchableText,
	}, nil
}

func isNotFound(err error) bool {
	var httpErr *typesense.HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound
}
