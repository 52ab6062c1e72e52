package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kapu/hololive-widget-go/internal/domain"
	"go.uber.org/zap"
)

// TalentRepository serves the official dataset from the talents table.
type TalentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTalentRepository(postgres *PostgresService, logger *zap.Logger) *TalentRepository {
	return &TalentRepository{
		db:     postgres.GetDB(),
		logger: logger,
	}
}

type talentRow struct {
	id         string
	firstName  string
	lastName   string
	birthday   sql.NullString
	image      sql.NullString
	generation sql.NullString
	branch     sql.NullString
	link       sql.NullString
}

func (r talentRow) record() domain.OfficialRecord {
	return domain.OfficialRecord{
		FirstName:  r.firstName,
		LastName:   r.lastName,
		Birthday:   r.birthday.String,
		Image:      r.image.String,
		Generation: r.generation.String,
		Branch:     r.branch.String,
		Link:       r.link.String,
	}
}

// FetchOfficial loads every talent ordered by sort_order then id.
func (r *TalentRepository) FetchOfficial(ctx context.Context) (*domain.OfficialSet, error) {
	query := `
		SELECT id, first_name, last_name, birthday, image, generation, branch, link
		FROM talents
		ORDER BY sort_order, id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query talents: %w", err)
	}
	defer rows.Close()

	set := domain.NewOfficialSet()
	for rows.Next() {
		var row talentRow
		if err := rows.Scan(&row.id, &row.firstName, &row.lastName, &row.birthday,
			&row.image, &row.generation, &row.branch, &row.link); err != nil {
			return nil, fmt.Errorf("failed to scan talent: %w", err)
		}
		set.Add(row.id, row.record())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate talents: %w", err)
	}

	r.logger.Debug("Official records loaded from PostgreSQL", zap.Int("count", set.Len()))
	return set, nil
}

// Upsert writes set in one transaction. Document order becomes sort_order.
func (r *TalentRepository) Upsert(ctx context.Context, set *domain.OfficialSet) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO talents (id, first_name, last_name, birthday, image, generation, branch, link, sort_order, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			birthday   = EXCLUDED.birthday,
			image      = EXCLUDED.image,
			generation = EXCLUDED.generation,
			branch     = EXCLUDED.branch,
			link       = EXCLUDED.link,
			sort_order = EXCLUDED.sort_order,
			updated_at = NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, id := range set.IDs() {
		record, _ := set.Get(id)
		if _, err := stmt.ExecContext(ctx, id, record.FirstName, record.LastName,
			nullable(record.Birthday), nullable(record.Image), nullable(record.Generation),
			nullable(record.Branch), nullable(record.Link), i); err != nil {
			return 0, fmt.Errorf("failed to upsert talent %q: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit talents: %w", err)
	}

	r.logger.Info("Talents upserted", zap.Int("count", set.Len()))
	return set.Len(), nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
