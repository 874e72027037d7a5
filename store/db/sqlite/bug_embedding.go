package sqlite

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/snagtrack/snagtrack/store"
)

// Vectors are stored as little-endian float32 BLOBs. Similarity search is
// computed in the application layer; see BugVectorSearch.

// float32ArrayToBLOB converts a []float32 to a BLOB.
func float32ArrayToBLOB(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

// blobToFloat32Array converts a BLOB back to a float32 array.
// This is the inverse of float32ArrayToBLOB.
func blobToFloat32Array(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("invalid BLOB length: %d is not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

// UpsertBugEmbedding inserts or updates a bug report embedding.
func (d *DB) UpsertBugEmbedding(ctx context.Context, embedding *store.BugEmbedding) (*store.BugEmbedding, error) {
	now := time.Now().Unix()
	if embedding.CreatedTs == 0 {
		embedding.CreatedTs = now
	}
	embedding.UpdatedTs = now

	stmt := `INSERT INTO bug_embedding (bug_report_id, embedding, model, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (bug_report_id, model) DO UPDATE SET
			embedding = excluded.embedding,
			updated_ts = excluded.updated_ts
		RETURNING id, created_ts, updated_ts`

	err := d.db.QueryRowContext(ctx, stmt,
		embedding.BugReportID,
		float32ArrayToBLOB(embedding.Embedding),
		embedding.Model,
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs, &embedding.UpdatedTs)

	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert bug embedding")
	}

	return embedding, nil
}

// ListBugEmbeddings lists bug report embeddings.
func (d *DB) ListBugEmbeddings(ctx context.Context, find *store.FindBugEmbedding) ([]*store.BugEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.BugReportID != nil {
		where, args = append(where, "bug_report_id = ?"), append(args, *find.BugReportID)
	}
	if find.Model != nil {
		where, args = append(where, "model = ?"), append(args, *find.Model)
	}

	query := `SELECT id, bug_report_id, embedding, model, created_ts, updated_ts
		FROM bug_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list bug embeddings")
	}
	defer rows.Close()

	list := []*store.BugEmbedding{}
	for rows.Next() {
		var embedding store.BugEmbedding
		var vectorBLOB []byte

		err := rows.Scan(
			&embedding.ID,
			&embedding.BugReportID,
			&vectorBLOB,
			&embedding.Model,
			&embedding.CreatedTs,
			&embedding.UpdatedTs,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan bug embedding")
		}

		embedding.Embedding, err = blobToFloat32Array(vectorBLOB)
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert embedding BLOB to array")
		}

		list = append(list, &embedding)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// FindBugReportsWithoutEmbedding finds bug reports that don't have embeddings for the specified model.
func (d *DB) FindBugReportsWithoutEmbedding(ctx context.Context, find *store.FindBugReportsWithoutEmbedding) ([]*store.BugReport, error) {
	limit := find.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT
			b.id, b.uid, b.organization_id, b.application_id, b.title, b.description, b.status, b.reporter_id, b.created_ts, b.updated_ts
		FROM bug_report b
		LEFT JOIN bug_embedding e ON b.id = e.bug_report_id AND e.model = ?
		WHERE e.id IS NULL
			AND LENGTH(b.title) > 0
		ORDER BY b.created_ts DESC
		LIMIT ?`

	rows, err := d.db.QueryContext(ctx, query, find.Model, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find bug reports without embedding")
	}
	defer rows.Close()

	list := []*store.BugReport{}
	for rows.Next() {
		bug, err := scanBugReport(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, bug)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// BugVectorSearch performs vector similarity search on bug reports.
// Uses Go-based cosine similarity computation (application-layer). The
// candidate query is already organization-scoped, so no cross-tenant row is
// ever loaded, let alone scored.
func (d *DB) BugVectorSearch(ctx context.Context, opts *store.BugVectorSearchOptions) ([]*store.BugReportWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT
			b.id, b.uid, b.organization_id, b.application_id, b.title, b.description, b.status, b.reporter_id, b.created_ts, b.updated_ts,
			e.embedding
		FROM bug_report b
		INNER JOIN bug_embedding e ON b.id = e.bug_report_id
		WHERE b.organization_id = ?
			AND b.id <> ?
			AND e.model = ?`

	rows, err := d.db.QueryContext(ctx, query, opts.OrganizationID, opts.ExcludeBugID, opts.Model)
	if err != nil {
		return nil, errors.Wrap(err, "failed to bug vector search")
	}
	defer rows.Close()

	type candidate struct {
		bug       *store.BugReport
		embedding []float32
	}
	candidates := []candidate{}

	for rows.Next() {
		var bug store.BugReport
		var vectorBLOB []byte

		err := rows.Scan(
			&bug.ID,
			&bug.UID,
			&bug.OrganizationID,
			&bug.ApplicationID,
			&bug.Title,
			&bug.Description,
			&bug.Status,
			&bug.ReporterID,
			&bug.CreatedTs,
			&bug.UpdatedTs,
			&vectorBLOB,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan bug vector search candidate")
		}

		embedding, err := blobToFloat32Array(vectorBLOB)
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert embedding BLOB to array")
		}

		candidates = append(candidates, candidate{bug: &bug, embedding: embedding})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Compute cosine similarity and rank
	results := []*store.BugReportWithScore{}
	for _, cand := range candidates {
		similarity := cosineSimilarity(opts.Vector, cand.embedding)
		if similarity < 0 {
			similarity = 0
		} else if similarity > 1 {
			similarity = 1
		}
		if similarity < opts.MinSimilarity {
			continue
		}
		results = append(results, &store.BugReportWithScore{
			BugReport: cand.bug,
			Score:     similarity,
		})
	}

	// Sort by similarity (descending)
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	// Return top-k
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// cosineSimilarity computes cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct float32
	var normA float32
	var normB float32

	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
