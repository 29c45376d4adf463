package export

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/filters"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
)

// StoreChunkFetcher reads export chunks straight from the call-log table,
// bypassing the distinct-aware query function.
type StoreChunkFetcher struct {
	db *gorm.DB
}

// NewStoreChunkFetcher returns a fetcher bound to the given database handle.
func NewStoreChunkFetcher(db *gorm.DB) *StoreChunkFetcher {
	return &StoreChunkFetcher{db: db}
}

// FetchChunk implements ChunkFetcher with a fixed created_at descending
// order so consecutive chunks partition the result set.
func (f *StoreChunkFetcher) FetchChunk(ctx context.Context, req ChunkRequest) ([]models.CallLog, error) {
	query := f.db.WithContext(ctx).Model(&models.CallLog{}).Select(req.Select)

	for _, clause := range req.Clauses {
		var err error
		query, err = applyClause(query, clause)
		if err != nil {
			return nil, err
		}
	}

	var chunk []models.CallLog
	err := query.Order("created_at DESC").
		Limit(req.Limit).
		Offset(req.Offset).
		Find(&chunk).Error
	if err != nil {
		return nil, fmt.Errorf("export chunk query failed: %w", err)
	}
	return chunk, nil
}

// applyClause translates one compiled clause into SQL. Clause columns may
// carry JSON paths ("metadata->>'campaign'") or casts, which are valid
// Postgres expressions as-is.
func applyClause(query *gorm.DB, clause filters.Clause) (*gorm.DB, error) {
	switch clause.Operator {
	case filters.OperatorEq:
		return query.Where(clause.Column+" = ?", clause.Value), nil
	case filters.OperatorILike:
		return query.Where(clause.Column+" ILIKE ?", clause.Value), nil
	case filters.OperatorGte:
		return query.Where(clause.Column+" >= ?", clause.Value), nil
	case filters.OperatorLte:
		return query.Where(clause.Column+" <= ?", clause.Value), nil
	case filters.OperatorGt:
		return query.Where(clause.Column+" > ?", clause.Value), nil
	case filters.OperatorLt:
		return query.Where(clause.Column+" < ?", clause.Value), nil
	case filters.OperatorNotIs:
		// Text-extracted JSON paths also exclude empty strings so that
		// "exists" means a usable value, not just a present key.
		if strings.Contains(clause.Column, "->>") {
			return query.Where(clause.Column + " IS NOT NULL AND " + clause.Column + " <> ''"), nil
		}
		return query.Where(clause.Column + " IS NOT NULL"), nil
	}
	return nil, fmt.Errorf("unknown clause operator %q", clause.Operator)
}
