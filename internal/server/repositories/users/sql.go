package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/dbx"
	"github.com/dmitrijs2005/pilgrim/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const userColumns = `id, username, email, password_hash, role, verified,
		 verification_token, token_expiry, reset_token, reset_token_expiry,
		 two_factor_code, two_factor_expiry, full_name, phone, bio, avatar_url, created_at`

// SQLRepository stores users in the relational users table. The queries use
// $n placeholders and RETURNING, which both PostgreSQL (pgx) and SQLite accept.
type SQLRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLRepository(db dbx.DBTX) *SQLRepository {
	return &SQLRepository{db: db, now: time.Now}
}

func (r *SQLRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	c := prepareNew(user, r.now())

	query :=
		`INSERT INTO users (username, email, password_hash, role, verified,
		 verification_token, token_expiry, reset_token, reset_token_expiry,
		 two_factor_code, two_factor_expiry, full_name, phone, bio, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING id`

	vTok, vExp := tokenArgs(c.Verification)
	rTok, rExp := tokenArgs(c.Reset)
	tTok, tExp := tokenArgs(c.TwoFactor)

	err := r.db.QueryRowContext(ctx, query,
		c.Username, c.Email, c.PasswordHash, string(c.Role), c.Verified,
		vTok, vExp, rTok, rExp, tTok, tExp,
		c.FullName, c.Phone, c.Bio, c.AvatarURL, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return c, nil
}

func (r *SQLRepository) Get(ctx context.Context, id int64) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *SQLRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *SQLRepository) GetByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}
	return r.getBy(ctx, "verification_token", token)
}

func (r *SQLRepository) GetByResetToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}
	return r.getBy(ctx, "reset_token", token)
}

func (r *SQLRepository) GetByTwoFactorCode(ctx context.Context, code string) (*models.User, error) {
	if code == "" {
		return nil, common.ErrorNotFound
	}
	return r.getBy(ctx, "two_factor_code", code)
}

func (r *SQLRepository) Update(ctx context.Context, id int64, patch models.UserPatch) (*models.User, error) {
	sets, args := buildSet(normalizePatch(patch))
	if len(sets) == 0 {
		return r.Get(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns,
	)

	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		if isUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return u, nil
}

// getBy selects the lowest-id row whose column equals value. column is
// always one of the fixed names above, never user input.
func (r *SQLRepository) getBy(ctx context.Context, column string, value any) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1 ORDER BY id LIMIT 1`, userColumns, column)

	u, err := scanUser(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                models.User
		role             string
		vTok, rTok, tTok sql.NullString
		vExp, rExp, tExp sql.NullTime
		createdAt        time.Time
	)

	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.Verified,
		&vTok, &vExp, &rTok, &rExp, &tTok, &tExp,
		&u.FullName, &u.Phone, &u.Bio, &u.AvatarURL, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	u.Role = models.Role(role)
	u.Verification = tokenFromColumns(vTok, vExp)
	u.Reset = tokenFromColumns(rTok, rExp)
	u.TwoFactor = tokenFromColumns(tTok, tExp)
	u.CreatedAt = normalizeTime(createdAt)

	return &u, nil
}

func tokenFromColumns(tok sql.NullString, exp sql.NullTime) models.TokenState {
	if !tok.Valid || tok.String == "" || !exp.Valid {
		return models.TokenState{}
	}
	return models.TokenState{Token: tok.String, ExpiresAt: normalizeTime(exp.Time)}
}

// tokenArgs maps a cleared pair to two NULLs.
func tokenArgs(ts models.TokenState) (any, any) {
	if ts.IsZero() {
		return nil, nil
	}
	return ts.Token, ts.ExpiresAt
}

func buildSet(p models.UserPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addToken := func(tokenColumn, expiryColumn string, ts *models.TokenState) {
		tok, exp := tokenArgs(*ts)
		add(tokenColumn, tok)
		add(expiryColumn, exp)
	}

	if p.Username != nil {
		add("username", *p.Username)
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if p.Role != nil {
		add("role", string(*p.Role))
	}
	if p.Verified != nil {
		add("verified", *p.Verified)
	}
	if p.Verification != nil {
		addToken("verification_token", "token_expiry", p.Verification)
	}
	if p.Reset != nil {
		addToken("reset_token", "reset_token_expiry", p.Reset)
	}
	if p.TwoFactor != nil {
		addToken("two_factor_code", "two_factor_expiry", p.TwoFactor)
	}
	if p.FullName != nil {
		add("full_name", *p.FullName)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.Bio != nil {
		add("bio", *p.Bio)
	}
	if p.AvatarURL != nil {
		add("avatar_url", *p.AvatarURL)
	}

	return sets, args
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
