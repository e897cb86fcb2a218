package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"listing_sync/internal/domain"
)

const errDupEntry = 1062

func valRef(p *domain.AssetRef) any {
	if p == nil || *p == "" {
		return nil
	}
	return string(*p)
}

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.PropertyRecord, error) {
	var (
		rec       domain.PropertyRecord
		featured  sql.NullString
		status    string
		retiredAt sql.NullTime
	)
	if err := s.Scan(
		&rec.ID,
		&rec.ExternalID,
		&rec.Title,
		&rec.Description,
		&rec.BookingURL,
		&rec.Bedrooms,
		&rec.Bathrooms,
		&featured,
		&status,
		&retiredAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return domain.PropertyRecord{}, err
	}
	if featured.Valid && featured.String != "" {
		ref := domain.AssetRef(featured.String)
		rec.FeaturedImage = &ref
	}
	rec.Status = domain.Status(status)
	if retiredAt.Valid {
		t := retiredAt.Time
		rec.RetiredAt = &t
	}
	return rec, nil
}

func (r *Repo) FindByExternalID(ctx context.Context, externalID string) (domain.PropertyRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, findByExternalIDSQL, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PropertyRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PropertyRecord{}, fmt.Errorf("find %s: %w", externalID, err)
	}
	return rec, nil
}

func (r *Repo) Create(ctx context.Context, f domain.RecordFields) (domain.PropertyRecord, error) {
	res, err := r.db.ExecContext(ctx, insertPropertySQL,
		f.ExternalID,
		f.Title,
		f.Description,
		f.BookingURL,
		f.Bedrooms,
		f.Bathrooms,
		valRef(f.FeaturedImage),
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == errDupEntry {
			return domain.PropertyRecord{}, fmt.Errorf("%w: %s", domain.ErrDuplicate, f.ExternalID)
		}
		return domain.PropertyRecord{}, fmt.Errorf("insert %s: %w", f.ExternalID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.PropertyRecord{}, fmt.Errorf("insert %s: last id: %w", f.ExternalID, err)
	}

	now := time.Now().UTC()
	rec := domain.PropertyRecord{
		ID:          id,
		ExternalID:  f.ExternalID,
		Title:       f.Title,
		Description: f.Description,
		BookingURL:  f.BookingURL,
		Bedrooms:    f.Bedrooms,
		Bathrooms:   f.Bathrooms,
		Status:      domain.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if valRef(f.FeaturedImage) != nil {
		ref := *f.FeaturedImage
		rec.FeaturedImage = &ref
	}
	return rec, nil
}

func (r *Repo) Update(ctx context.Context, id int64, f domain.RecordFields) error {
	_, err := r.db.ExecContext(ctx, updatePropertySQL,
		f.Title, f.Description, f.BookingURL, f.Bedrooms, f.Bathrooms, id)
	if err != nil {
		return fmt.Errorf("update %d: %w", id, err)
	}
	return nil
}

func (r *Repo) Reactivate(ctx context.Context, id int64, f domain.RecordFields) error {
	_, err := r.db.ExecContext(ctx, reactivatePropertySQL,
		f.Title, f.Description, f.BookingURL, f.Bedrooms, f.Bathrooms, id)
	if err != nil {
		return fmt.Errorf("reactivate %d: %w", id, err)
	}
	return nil
}

func (r *Repo) Retire(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, retirePropertySQL, id); err != nil {
		return fmt.Errorf("retire %d: %w", id, err)
	}
	return nil
}

func (r *Repo) ListActive(ctx context.Context) ([]domain.PropertyRecord, error) {
	rows, err := r.db.QueryContext(ctx, listActiveSQL)
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	defer rows.Close()

	out := []domain.PropertyRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list active: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	return out, nil
}

// RecordRun stores a finished sync report.
func (r *Repo) RecordRun(ctx context.Context, rep domain.SyncReport) error {
	var problems any
	if len(rep.Problems) > 0 {
		b, err := json.Marshal(rep.Problems)
		if err != nil {
			return fmt.Errorf("encode problems: %w", err)
		}
		problems = string(b)
	}
	_, err := r.db.ExecContext(ctx, insertRunSQL,
		rep.RunID,
		rep.StartedAt.UTC(),
		rep.FinishedAt.UTC(),
		rep.DryRun,
		rep.Aborted,
		valStr(rep.AbortReason),
		rep.Fetched,
		rep.Created,
		rep.Updated,
		rep.Unchanged,
		rep.Reactivated,
		rep.Retired,
		rep.Skipped,
		rep.Failed,
		problems,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rep.RunID, err)
	}
	return nil
}
