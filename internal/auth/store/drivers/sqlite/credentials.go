package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/quill/internal/auth/domain"
	"github.com/aussiebroadwan/quill/internal/auth/store"
)

const credentialColumns = `id, user_id, token_hash, expires_at, revoked, revoked_at, superseded_by, created_at`

type credentialsRepo struct {
	db *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *credentialsRepo) CreateCredential(ctx context.Context, c domain.Credential) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_credentials (id, user_id, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.TokenHash, toMillis(c.ExpiresAt), toMillis(c.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *credentialsRepo) FindActiveCredential(
	ctx context.Context,
	hash string,
	now time.Time,
) (domain.Credential, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM refresh_credentials
		 WHERE token_hash = ? AND revoked = 0 AND expires_at > ?`,
		hash, toMillis(now),
	)
	return scanCredential(row)
}

// ConsumeCredential relies on a single conditional UPDATE so the active check
// and the revocation cannot interleave with another caller.
func (r *credentialsRepo) ConsumeCredential(
	ctx context.Context,
	hash, successorID string,
	now time.Time,
) (domain.Credential, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE refresh_credentials
		 SET revoked = 1, revoked_at = ?, superseded_by = ?
		 WHERE token_hash = ? AND revoked = 0 AND expires_at > ?
		 RETURNING `+credentialColumns,
		toMillis(now), mapStringNull(successorID), hash, toMillis(now),
	)
	return scanCredential(row)
}

func (r *credentialsRepo) RevokeCredential(ctx context.Context, hash string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_credentials
		 SET revoked = 1, revoked_at = COALESCE(revoked_at, ?)
		 WHERE token_hash = ?`,
		toMillis(now), hash,
	)
	return requireAffected(res, err)
}

func (r *credentialsRepo) DeleteCredential(ctx context.Context, hash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_credentials WHERE token_hash = ?`, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *credentialsRepo) GetCredential(ctx context.Context, hash string) (domain.Credential, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM refresh_credentials WHERE token_hash = ?`, hash)
	return scanCredential(row)
}

func (r *credentialsRepo) RevokeUserCredentials(
	ctx context.Context,
	userID string,
	now time.Time,
) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_credentials SET revoked = 1, revoked_at = ?
		 WHERE user_id = ? AND revoked = 0 AND expires_at > ?`,
		toMillis(now), userID, toMillis(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *credentialsRepo) DeleteExpiredCredentials(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_credentials WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanCredential(row rowScanner) (domain.Credential, error) {
	var (
		c                    domain.Credential
		expiresAt, createdAt int64
		revokedAt            sql.NullInt64
		supersededBy         sql.NullString
	)
	err := row.Scan(&c.ID, &c.UserID, &c.TokenHash, &expiresAt, &c.Revoked, &revokedAt, &supersededBy, &createdAt)
	if err != nil {
		return domain.Credential{}, mapNotFound(err)
	}
	c.ExpiresAt = fromMillis(expiresAt)
	c.RevokedAt = fromNullMillis(revokedAt)
	c.SupersededBy = mapNullString(supersededBy)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

var _ store.Credentials = (*credentialsRepo)(nil)
