package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/blogapi/internal/auth"
	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB interface for database operations. Single-row lookups return (nil, nil)
// when nothing matches. Lists are newest first.
type DB interface {
	// User operations
	FindCredential(ctx context.Context, username, email string) (*auth.Credential, error)
	GetUserByEmail(ctx context.Context, email string) (*auth.Credential, error)
	CreateUser(ctx context.Context, username, email, passwordHash string) (*auth.Credential, error)
	// Post operations
	CreatePost(ctx context.Context, userID int64, title, content string) (int64, error)
	GetPostByID(ctx context.Context, id int64) (*Post, error)
	ListPosts(ctx context.Context) ([]*Post, error)
	ListPostsByUser(ctx context.Context, userID int64) ([]*Post, error)
	UpdatePost(ctx context.Context, id int64, title, content string) error
	DeletePost(ctx context.Context, id int64) error
	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ DB = (*MemDB)(nil)
	_ DB = (*SQLiteDB)(nil)
	_ DB = (*PostgresDB)(nil)
)

// Memory DB
type MemDB struct {
	mu      sync.RWMutex
	users   map[int64]*auth.Credential
	posts   map[int64]*Post
	userSeq int64
	postSeq int64
	now     func() time.Time
}

func NewMemoryDB() *MemDB {
	return &MemDB{
		users: map[int64]*auth.Credential{},
		posts: map[int64]*Post{},
		now:   time.Now,
	}
}

func (m *MemDB) FindCredential(_ context.Context, username, email string) (*auth.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemDB) GetUserByEmail(_ context.Context, email string) (*auth.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

// CreateUser checks uniqueness and inserts under one lock, so concurrent
// registrations behave like a unique constraint.
func (m *MemDB) CreateUser(_ context.Context, username, email, passwordHash string) (*auth.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username || u.Email == email {
			return nil, oops.Code("USER_DUPLICATE").With("username", username).Wrap(auth.ErrDuplicate)
		}
	}
	m.userSeq++
	u := &auth.Credential{ID: m.userSeq, Username: username, Email: email, PasswordHash: passwordHash, CreatedAt: m.now()}
	m.users[u.ID] = u
	c := *u
	return &c, nil
}

func (m *MemDB) CreatePost(_ context.Context, userID int64, title, content string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return 0, oops.Code("POST_OWNER_MISSING").With("user_id", userID).Errorf("user %d does not exist", userID)
	}
	m.postSeq++
	now := m.now()
	m.posts[m.postSeq] = &Post{ID: m.postSeq, UserID: userID, Title: title, Content: content, CreatedAt: now, UpdatedAt: now}
	return m.postSeq, nil
}

// withAuthor copies p and fills in the author's username. Callers hold mu.
func (m *MemDB) withAuthor(p *Post) *Post {
	cp := *p
	if u, ok := m.users[p.UserID]; ok {
		cp.Username = u.Username
	}
	return &cp
}

func (m *MemDB) GetPostByID(_ context.Context, id int64) (*Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, nil
	}
	return m.withAuthor(p), nil
}

func (m *MemDB) ListPosts(_ context.Context) ([]*Post, error) {
	return m.list(func(*Post) bool { return true }), nil
}

func (m *MemDB) ListPostsByUser(_ context.Context, userID int64) ([]*Post, error) {
	return m.list(func(p *Post) bool { return p.UserID == userID }), nil
}

func (m *MemDB) list(keep func(*Post) bool) []*Post {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Post{}
	for _, p := range m.posts {
		if keep(p) {
			out = append(out, m.withAuthor(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (m *MemDB) UpdatePost(_ context.Context, id int64, title, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return auth.ErrNotFound
	}
	p.Title, p.Content, p.UpdatedAt = title, content, m.now()
	return nil
}

func (m *MemDB) DeletePost(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

func (m *MemDB) Ping(context.Context) error { return nil }
func (m *MemDB) Close() error               { return nil }

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

// sqlitePragmas are applied to every connection the pool opens.
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// NewSQLiteDB opens the database file at path. The schema comes from the
// embedded migrations, see ApplyMigrations.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + sqlitePragmas
	} else {
		dsn += "?" + sqlitePragmas
	}
	d, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("adapter", "sqlite").Wrap(err)
	}
	// SQLite allows one writer; serialising in the pool avoids SQLITE_BUSY.
	d.SetMaxOpenConns(1)
	if err := d.Ping(); err != nil {
		d.Close()
		return nil, oops.Code("DB_PING_FAILED").With("adapter", "sqlite").Wrap(err)
	}
	return &SQLiteDB{db: d, path: path}, nil
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

// sqliteTime scans DATETIME columns, which the driver may hand back either
// as time.Time or as text depending on how the value was written.
type sqliteTime struct{ t *time.Time }

var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
}

func (s sqliteTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*s.t = v.UTC()
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	case nil:
		*s.t = time.Time{}
		return nil
	}
	return fmt.Errorf("unsupported time value %T", src)
}

func (s sqliteTime) parse(v string) error {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			*s.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", v)
}

func (s *SQLiteDB) FindCredential(ctx context.Context, username, email string) (*auth.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,username,email,password,created_at FROM users WHERE username = ? OR email = ? LIMIT 1`, username, email)
	return s.scanCredential(row)
}

func (s *SQLiteDB) GetUserByEmail(ctx context.Context, email string) (*auth.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,username,email,password,created_at FROM users WHERE email = ?`, email)
	return s.scanCredential(row)
}

func (s *SQLiteDB) scanCredential(row *sql.Row) (*auth.Credential, error) {
	var c auth.Credential
	if err := row.Scan(&c.ID, &c.Username, &c.Email, &c.PasswordHash, sqliteTime{&c.CreatedAt}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.Code("USER_QUERY_FAILED").Wrap(err)
	}
	return &c, nil
}

func (s *SQLiteDB) CreateUser(ctx context.Context, username, email, passwordHash string) (*auth.Credential, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO users(username,email,password) VALUES(?,?,?)`, username, email, passwordHash)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, oops.Code("USER_DUPLICATE").With("username", username).Wrap(auth.ErrDuplicate)
		}
		return nil, oops.Code("USER_INSERT_FAILED").Wrap(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, oops.Code("USER_INSERT_FAILED").Wrap(err)
	}
	return &auth.Credential{ID: id, Username: username, Email: email, PasswordHash: passwordHash}, nil
}

func (s *SQLiteDB) CreatePost(ctx context.Context, userID int64, title, content string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO posts(user_id,title,content) VALUES(?,?,?)`, userID, title, content)
	if err != nil {
		return 0, oops.Code("POST_INSERT_FAILED").With("user_id", userID).Wrap(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, oops.Code("POST_INSERT_FAILED").Wrap(err)
	}
	return id, nil
}

const sqlitePostColumns = `p.id,p.user_id,p.title,p.content,p.created_at,p.updated_at,u.username FROM posts p JOIN users u ON u.id = p.user_id`

func (s *SQLiteDB) GetPostByID(ctx context.Context, id int64) (*Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqlitePostColumns+` WHERE p.id = ?`, id)
	var p Post
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Content, sqliteTime{&p.CreatedAt}, sqliteTime{&p.UpdatedAt}, &p.Username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, oops.Code("POST_QUERY_FAILED").With("post_id", id).Wrap(err)
	}
	return &p, nil
}

func (s *SQLiteDB) ListPosts(ctx context.Context) ([]*Post, error) {
	return s.queryPosts(ctx, `SELECT `+sqlitePostColumns+` ORDER BY p.created_at DESC, p.id DESC`)
}

func (s *SQLiteDB) ListPostsByUser(ctx context.Context, userID int64) ([]*Post, error) {
	return s.queryPosts(ctx, `SELECT `+sqlitePostColumns+` WHERE p.user_id = ? ORDER BY p.created_at DESC, p.id DESC`, userID)
}

func (s *SQLiteDB) queryPosts(ctx context.Context, query string, args ...any) ([]*Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, oops.Code("POST_QUERY_FAILED").Wrap(err)
	}
	defer rows.Close()
	posts := []*Post{}
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Content, sqliteTime{&p.CreatedAt}, sqliteTime{&p.UpdatedAt}, &p.Username); err != nil {
			return nil, oops.Code("POST_SCAN_FAILED").Wrap(err)
		}
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("POST_QUERY_FAILED").Wrap(err)
	}
	return posts, nil
}

func (s *SQLiteDB) UpdatePost(ctx context.Context, id int64, title, content string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET title = ?, content = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, title, content, id)
	if err != nil {
		return oops.Code("POST_UPDATE_FAILED").With("post_id", id).Wrap(err)
	}
	return requireAffected(res, id)
}

func (s *SQLiteDB) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return oops.Code("POST_DELETE_FAILED").With("post_id", id).Wrap(err)
	}
	return requireAffected(res, id)
}

// requireAffected maps a zero-row update or delete to auth.ErrNotFound.
func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("POST_WRITE_FAILED").With("post_id", id).Wrap(err)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *SQLiteDB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLiteDB) Close() error                   { return s.db.Close() }
