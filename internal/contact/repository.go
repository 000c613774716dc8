package contact

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists contacts.
type Repository interface {
	Upsert(ctx context.Context, contact Contact) error
	Find(ctx context.Context, userID, alias string) (Contact, bool, error)
	ListByUser(ctx context.Context, userID string) ([]Contact, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed contact repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts the contact or overwrites the address of an existing alias.
func (r *PostgresRepository) Upsert(ctx context.Context, contact Contact) error {
	contactID, err := uuid.Parse(contact.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(contact.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO contacts (id, user_id, alias, address, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id, alias) DO UPDATE SET address = EXCLUDED.address`,
		contactID, userID, contact.Alias, contact.Address, contact.CreatedAt.UTC())
	return err
}

// Find returns the contact for the normalized alias, reporting absence
// without an error.
func (r *PostgresRepository) Find(ctx context.Context, userID, alias string) (Contact, bool, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return Contact{}, false, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, user_id, alias, address, created_at
        FROM contacts WHERE user_id = $1 AND alias = $2`, id, alias)
	if err != nil {
		return Contact{}, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return Contact{}, false, rows.Err()
	}
	c, err := scanContact(rows.Scan)
	if err != nil {
		return Contact{}, false, err
	}
	return c, true, nil
}

// ListByUser returns the user's contacts ordered by alias.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Contact, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT id, user_id, alias, address, created_at
        FROM contacts WHERE user_id = $1 ORDER BY alias`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		c, err := scanContact(rows.Scan)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func scanContact(scan func(dest ...any) error) (Contact, error) {
	var (
		id        uuid.UUID
		userID    uuid.UUID
		createdAt time.Time
		c         Contact
	)
	if err := scan(&id, &userID, &c.Alias, &c.Address, &createdAt); err != nil {
		return Contact{}, err
	}
	c.ID = id.String()
	c.UserID = userID.String()
	c.CreatedAt = createdAt.UTC()
	return c, nil
}
