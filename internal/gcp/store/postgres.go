package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"georef/internal/gcp/models"
	id "georef/pkg/domain"
	"georef/pkg/platform/sentinel"
	txcontext "georef/pkg/platform/tx"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const gcpColumns = `id, image_id, source_x, source_y, map_x, map_y, idx, residual, created_at, updated_at`

// PostgresStore persists GCPs in PostgreSQL. Every method joins the
// transaction carried by ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed GCP store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, gcp *models.GCP) error {
	query := `INSERT INTO gcps (` + gcpColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(gcp.ID), uuid.UUID(gcp.ImageID),
		gcp.SourceX, gcp.SourceY, gcp.MapX, gcp.MapY,
		gcp.Index, nullFloat(gcp.Residual), gcp.CreatedAt, gcp.UpdatedAt,
	)
	if err != nil {
		return translateWriteError(err, "create gcp")
	}
	return nil
}

// CreateMany inserts all gcps in one round trip using unnest over parallel arrays.
func (s *PostgresStore) CreateMany(ctx context.Context, gcps []models.GCP) error {
	if len(gcps) == 0 {
		return nil
	}
	var (
		ids      = make([]string, len(gcps))
		imageIDs = make([]string, len(gcps))
		sourceX  = make([]float64, len(gcps))
		sourceY  = make([]float64, len(gcps))
		mapX     = make([]float64, len(gcps))
		mapY     = make([]float64, len(gcps))
		indices  = make([]int64, len(gcps))
	)
	for i, g := range gcps {
		ids[i] = g.ID.String()
		imageIDs[i] = g.ImageID.String()
		sourceX[i], sourceY[i] = g.SourceX, g.SourceY
		mapX[i], mapY[i] = g.MapX, g.MapY
		indices[i] = int64(g.Index)
	}
	query := `
		INSERT INTO gcps (id, image_id, source_x, source_y, map_x, map_y, idx, created_at, updated_at)
		SELECT v.id, v.image_id, v.source_x, v.source_y, v.map_x, v.map_y, v.idx, $8::timestamptz, $8::timestamptz
		FROM unnest($1::uuid[], $2::uuid[], $3::float8[], $4::float8[], $5::float8[], $6::float8[], $7::int[])
			AS v(id, image_id, source_x, source_y, map_x, map_y, idx)
	`
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		pq.Array(ids), pq.Array(imageIDs),
		pq.Array(sourceX), pq.Array(sourceY), pq.Array(mapX), pq.Array(mapY),
		pq.Array(indices), gcps[0].CreatedAt,
	)
	if err != nil {
		return translateWriteError(err, "create gcps")
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, gcpID id.GCPID) (*models.GCP, error) {
	query := `SELECT ` + gcpColumns + ` FROM gcps WHERE id = $1`
	g, err := scanGCP(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(gcpID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find gcp by id: %w", err)
	}
	return &g, nil
}

func (s *PostgresStore) ListByImage(ctx context.Context, imageID id.ImageID) ([]models.GCP, error) {
	query := `SELECT ` + gcpColumns + ` FROM gcps WHERE image_id = $1 ORDER BY idx`
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, uuid.UUID(imageID))
	if err != nil {
		return nil, fmt.Errorf("list gcps: %w", err)
	}
	defer rows.Close()

	out := make([]models.GCP, 0)
	for rows.Next() {
		g, err := scanGCP(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gcp: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gcps: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MaxIndex(ctx context.Context, imageID id.ImageID) (int, error) {
	var maxIndex int
	query := `SELECT COALESCE(MAX(idx), 0) FROM gcps WHERE image_id = $1`
	if err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(imageID)).Scan(&maxIndex); err != nil {
		return 0, fmt.Errorf("max gcp index: %w", err)
	}
	return maxIndex, nil
}

func (s *PostgresStore) UpdateCoordinates(ctx context.Context, gcp *models.GCP) error {
	query := `
		UPDATE gcps
		SET source_x = $2, source_y = $3, map_x = $4, map_y = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(gcp.ID), gcp.SourceX, gcp.SourceY, gcp.MapX, gcp.MapY, gcp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update gcp: %w", err)
	}
	return expectRows(res)
}

func (s *PostgresStore) Delete(ctx context.Context, gcpID id.GCPID) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `DELETE FROM gcps WHERE id = $1`, uuid.UUID(gcpID))
	if err != nil {
		return fmt.Errorf("delete gcp: %w", err)
	}
	return expectRows(res)
}

func (s *PostgresStore) DeleteByImage(ctx context.Context, imageID id.ImageID) (int, error) {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `DELETE FROM gcps WHERE image_id = $1`, uuid.UUID(imageID))
	if err != nil {
		return 0, fmt.Errorf("delete gcps by image: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Reindex renumbers in a single statement; the unique constraint on
// (image_id, idx) is checked at statement end.
func (s *PostgresStore) Reindex(ctx context.Context, imageID id.ImageID, updatedAt time.Time) error {
	query := `
		UPDATE gcps g
		SET idx = r.rn, updated_at = $2
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY idx) AS rn
			FROM gcps
			WHERE image_id = $1
		) r
		WHERE g.id = r.id AND g.idx <> r.rn
	`
	if _, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query, uuid.UUID(imageID), updatedAt); err != nil {
		return fmt.Errorf("reindex gcps: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetResiduals(ctx context.Context, gcpIDs []id.GCPID, residuals []*float64, updatedAt time.Time) error {
	if len(gcpIDs) != len(residuals) {
		return fmt.Errorf("set residuals: %d ids for %d residuals", len(gcpIDs), len(residuals))
	}
	if len(gcpIDs) == 0 {
		return nil
	}
	ids := make([]string, len(gcpIDs))
	values := make([]sql.NullFloat64, len(residuals))
	for i := range gcpIDs {
		ids[i] = gcpIDs[i].String()
		values[i] = nullFloat(residuals[i])
	}
	query := `
		UPDATE gcps g
		SET residual = v.residual, updated_at = $3
		FROM unnest($1::uuid[], $2::float8[]) AS v(id, residual)
		WHERE g.id = v.id
	`
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query, pq.Array(ids), pq.Array(values), updatedAt)
	if err != nil {
		return fmt.Errorf("set residuals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if int(n) != len(gcpIDs) {
		return fmt.Errorf("set residuals: updated %d of %d: %w", n, len(gcpIDs), sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ClearResiduals(ctx context.Context, imageID id.ImageID, updatedAt time.Time) error {
	query := `UPDATE gcps SET residual = NULL, updated_at = $2 WHERE image_id = $1 AND residual IS NOT NULL`
	if _, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query, uuid.UUID(imageID), updatedAt); err != nil {
		return fmt.Errorf("clear residuals: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGCP(row rowScanner) (models.GCP, error) {
	var (
		g        models.GCP
		gcpID    uuid.UUID
		imageID  uuid.UUID
		residual sql.NullFloat64
	)
	err := row.Scan(&gcpID, &imageID, &g.SourceX, &g.SourceY, &g.MapX, &g.MapY,
		&g.Index, &residual, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return models.GCP{}, err
	}
	g.ID = id.GCPID(gcpID)
	g.ImageID = id.ImageID(imageID)
	if residual.Valid {
		v := residual.Float64
		g.Residual = &v
	}
	return g, nil
}

func translateWriteError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		case foreignKeyViolation:
			return fmt.Errorf("%s: image: %w", op, sentinel.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
