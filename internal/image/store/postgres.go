package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"georef/internal/image/models"
	"georef/internal/transform"
	id "georef/pkg/domain"
	"georef/pkg/platform/sentinel"
	txcontext "georef/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists images in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed image store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, image *models.Image) error {
	query := `
		INSERT INTO images (id, filename, hash, status, transformation_type, srid,
			resampling_method, compression, mean_residual, uploaded_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(image.ID),
		image.Filename,
		image.Hash,
		string(image.Status),
		int(image.Settings.TransformationType),
		int(image.Settings.SRID),
		string(image.Settings.ResamplingMethod),
		string(image.Settings.Compression),
		nullFloat(image.MeanResidual),
		image.UploadedAt,
		image.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("image %s: %w", image.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create image: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, imageID id.ImageID) (*models.Image, error) {
	query := `
		SELECT id, filename, hash, status, transformation_type, srid,
			resampling_method, compression, mean_residual, uploaded_at, updated_at
		FROM images
		WHERE id = $1
	`
	var (
		rawID      uuid.UUID
		status     string
		degree     int
		srid       int
		resampling string
		compress   string
		mean       sql.NullFloat64
		image      models.Image
	)
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(imageID)).Scan(
		&rawID, &image.Filename, &image.Hash, &status, &degree, &srid,
		&resampling, &compress, &mean, &image.UploadedAt, &image.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find image by id: %w", err)
	}
	image.ID = id.ImageID(rawID)
	image.Status = models.Status(status)
	image.Settings = models.Settings{
		TransformationType: transformDegree(degree),
		SRID:               models.SRID(srid),
		ResamplingMethod:   models.ResamplingMethod(resampling),
		Compression:        models.Compression(compress),
	}
	if mean.Valid {
		v := mean.Float64
		image.MeanResidual = &v
	}
	return &image, nil
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, imageID id.ImageID, settings models.Settings, updatedAt time.Time) error {
	query := `
		UPDATE images
		SET transformation_type = $2, srid = $3, resampling_method = $4,
			compression = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(imageID),
		int(settings.TransformationType),
		int(settings.SRID),
		string(settings.ResamplingMethod),
		string(settings.Compression),
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("update image settings: %w", err)
	}
	return expectOneRow(res)
}

func (s *PostgresStore) UpdateMeanResidual(ctx context.Context, imageID id.ImageID, mean *float64, updatedAt time.Time) error {
	query := `UPDATE images SET mean_residual = $2, updated_at = $3 WHERE id = $1`
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query, uuid.UUID(imageID), nullFloat(mean), updatedAt)
	if err != nil {
		return fmt.Errorf("update image mean residual: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
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

func transformDegree(n int) transform.Degree {
	if d := transform.Degree(n); d.Valid() {
		return d
	}
	return transform.DefaultDegree
}
