package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/blogapi/internal/auth"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/samber/oops"
)

type PostgresDB struct {
	db *sql.DB
}

// PoolConfig bounds the connection pool. A burst of requests queues for a
// connection once MaxOpenConns are in use.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func NewPostgresDB(dsn string, pool PoolConfig) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("adapter", "postgres").Wrap(err)
	}
	if pool.MaxOpenConns > 0 {
		d.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		d.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		d.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	// rely on migrations to create tables; just verify connectivity
	if err := d.Ping(); err != nil {
		d.Close()
		return nil, oops.Code("DB_PING_FAILED").With("adapter", "postgres").Wrap(err)
	}
	return newPostgresFromDB(d), nil
}

func newPostgresFromDB(d *sql.DB) *PostgresDB {
	return &PostgresDB{db: d}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation
}

func (p *PostgresDB) FindCredential(ctx context.Context, username, email string) (*auth.Credential, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id,username,email,password,created_at FROM users WHERE username = $1 OR email = $2 LIMIT 1`, username, email)
	return scanPgCredential(row)
}

func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*auth.Credential, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id,username,email,password,created_at FROM users WHERE email = $1`, email)
	return scanPgCredential(row)
}

func scanPgCredential(row *sql.Row) (*auth.Credential, error) {
	var c auth.Credential
	if err := row.Scan(&c.ID, &c.Username, &c.Email, &c.PasswordHash, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.Code("USER_QUERY_FAILED").Wrap(err)
	}
	return &c, nil
}

func (p *PostgresDB) CreateUser(ctx context.Context, username, email, passwordHash string) (*auth.Credential, error) {
	c := &auth.Credential{Username: username, Email: email, PasswordHash: passwordHash}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users(username,email,password) VALUES($1,$2,$3) RETURNING id,created_at`,
		username, email, passwordHash,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, oops.Code("USER_DUPLICATE").With("username", username).Wrap(auth.ErrDuplicate)
		}
		return nil, oops.Code("USER_INSERT_FAILED").Wrap(err)
	}
	return c, nil
}

func (p *PostgresDB) CreatePost(ctx context.Context, userID int64, title, content string) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx, `INSERT INTO posts(user_id,title,content) VALUES($1,$2,$3) RETURNING id`, userID, title, content).Scan(&id)
	if err != nil {
		return 0, oops.Code("POST_INSERT_FAILED").With("user_id", userID).Wrap(err)
	}
	return id, nil
}

const pgPostColumns = `p.id,p.user_id,p.title,p.content,p.created_at,p.updated_at,u.username FROM posts p JOIN users u ON u.id = p.user_id`

func (p *PostgresDB) GetPostByID(ctx context.Context, id int64) (*Post, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+pgPostColumns+` WHERE p.id = $1`, id)
	var post Post
	if err := row.Scan(&post.ID, &post.UserID, &post.Title, &post.Content, &post.CreatedAt, &post.UpdatedAt, &post.Username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.Code("POST_QUERY_FAILED").With("post_id", id).Wrap(err)
	}
	return &post, nil
}

func (p *PostgresDB) ListPosts(ctx context.Context) ([]*Post, error) {
	return p.queryPosts(ctx, `SELECT `+pgPostColumns+` ORDER BY p.created_at DESC, p.id DESC`)
}

func (p *PostgresDB) ListPostsByUser(ctx context.Context, userID int64) ([]*Post, error) {
	return p.queryPosts(ctx, `SELECT `+pgPostColumns+` WHERE p.user_id = $1 ORDER BY p.created_at DESC, p.id DESC`, userID)
}

func (p *PostgresDB) queryPosts(ctx context.Context, query string, args ...any) ([]*Post, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, oops.Code("POST_QUERY_FAILED").Wrap(err)
	}
	defer rows.Close()
	posts := []*Post{}
	for rows.Next() {
		var post Post
		if err := rows.Scan(&post.ID, &post.UserID, &post.Title, &post.Content, &post.CreatedAt, &post.UpdatedAt, &post.Username); err != nil {
			return nil, oops.Code("POST_SCAN_FAILED").Wrap(err)
		}
		posts = append(posts, &post)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("POST_QUERY_FAILED").Wrap(err)
	}
	return posts, nil
}

func (p *PostgresDB) UpdatePost(ctx context.Context, id int64, title, content string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE posts SET title = $1, content = $2, updated_at = now() WHERE id = $3`, title, content, id)
	if err != nil {
		return oops.Code("POST_UPDATE_FAILED").With("post_id", id).Wrap(err)
	}
	return requireAffected(res, id)
}

func (p *PostgresDB) DeletePost(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return oops.Code("POST_DELETE_FAILED").With("post_id", id).Wrap(err)
	}
	return requireAffected(res, id)
}

func (p *PostgresDB) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *PostgresDB) Close() error                   { return p.db.Close() }
