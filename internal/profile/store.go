package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/commercekit/dataport/internal/storage"
)

// ErrProfileNotFound is returned when a profile id does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// Store persists profiles and their expressions.
type Store struct {
	db storage.DBTX
}

// NewStore creates a profile store over the given database handle.
func NewStore(db storage.DBTX) *Store {
	return &Store{db: db}
}

// Init creates the backing tables when they do not exist yet.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS import_export_profile (
			id         BIGSERIAL PRIMARY KEY,
			name       TEXT NOT NULL,
			type       TEXT NOT NULL,
			tree       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("create profile table: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS import_export_expression (
			id                BIGSERIAL PRIMARY KEY,
			profile_id        BIGINT NOT NULL REFERENCES import_export_profile(id) ON DELETE CASCADE,
			variable          TEXT NOT NULL,
			export_conversion TEXT NOT NULL DEFAULT '',
			import_conversion TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return fmt.Errorf("create expression table: %w", err)
	}
	return nil
}

// Create stores a new profile seeded with the default tree for its type.
func (s *Store) Create(ctx context.Context, name, profileType string) (*Profile, error) {
	tree, err := DefaultTree(profileType)
	if err != nil {
		return nil, err
	}
	blob, err := tree.Encode()
	if err != nil {
		return nil, err
	}

	p := &Profile{Name: name, Type: profileType, Tree: tree}
	row := s.db.QueryRow(ctx,
		`INSERT INTO import_export_profile (name, type, tree) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		name, profileType, string(blob))
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return p, nil
}

// Get loads a profile with its tree and expressions.
func (s *Store) Get(ctx context.Context, id int64) (*Profile, error) {
	p := &Profile{ID: id}
	var blob string
	row := s.db.QueryRow(ctx,
		`SELECT name, type, tree, created_at FROM import_export_profile WHERE id = $1`, id)
	if err := row.Scan(&p.Name, &p.Type, &blob, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("profile %d: %w", id, ErrProfileNotFound)
		}
		return nil, fmt.Errorf("load profile %d: %w", id, err)
	}

	tree, err := ParseTree([]byte(blob))
	if err != nil {
		return nil, fmt.Errorf("profile %d: %w", id, err)
	}
	p.Tree = tree

	exprs, err := s.ListExpressions(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Expressions = exprs
	return p, nil
}

// List returns all profiles without their trees or expressions.
func (s *Store) List(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, type, created_at FROM import_export_profile ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveTree persists the edited tree of a profile.
func (s *Store) SaveTree(ctx context.Context, id int64, tree *Tree) error {
	blob, err := tree.Encode()
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE import_export_profile SET tree = $1 WHERE id = $2`, string(blob), id)
	if err != nil {
		return fmt.Errorf("save profile tree %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile %d: %w", id, ErrProfileNotFound)
	}
	return nil
}

// Delete removes a profile; expressions cascade.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM import_export_profile WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete profile %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile %d: %w", id, ErrProfileNotFound)
	}
	return nil
}

// ListExpressions returns the conversion expressions of a profile.
func (s *Store) ListExpressions(ctx context.Context, profileID int64) ([]Expression, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, profile_id, variable, export_conversion, import_conversion
		 FROM import_export_expression WHERE profile_id = $1 ORDER BY id`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list expressions: %w", err)
	}
	defer rows.Close()

	var out []Expression
	for rows.Next() {
		var e Expression
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.Variable, &e.ExportConversion, &e.ImportConversion); err != nil {
			return nil, fmt.Errorf("scan expression: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateExpression adds a conversion expression to a profile.
func (s *Store) CreateExpression(ctx context.Context, e Expression) (Expression, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO import_export_expression (profile_id, variable, export_conversion, import_conversion)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		e.ProfileID, e.Variable, e.ExportConversion, e.ImportConversion)
	if err := row.Scan(&e.ID); err != nil {
		return Expression{}, fmt.Errorf("insert expression: %w", err)
	}
	return e, nil
}

// UpdateExpression rewrites an existing conversion expression.
func (s *Store) UpdateExpression(ctx context.Context, e Expression) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE import_export_expression
		 SET variable = $1, export_conversion = $2, import_conversion = $3
		 WHERE id = $4`,
		e.Variable, e.ExportConversion, e.ImportConversion, e.ID)
	if err != nil {
		return fmt.Errorf("update expression %d: %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expression %d: %w", e.ID, ErrNotFound)
	}
	return nil
}

// DeleteExpression removes a conversion expression.
func (s *Store) DeleteExpression(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM import_export_expression WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete expression %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expression %d: %w", id, ErrNotFound)
	}
	return nil
}
