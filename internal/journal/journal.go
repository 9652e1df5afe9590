// Package journal keeps an append-only sqlite log of resolved exchanges for
// diagnostics. Nothing in it is ever loaded back into a widget session.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"chat-widget/internal/chat"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type Entry struct {
	ID         int64
	SessionID  string
	Seq        int
	UserID     string
	Prompt     string
	Reply      string
	ErrorKind  string
	StartedAt  int64
	DurationMS int64
}

func (e Entry) Failed() bool { return e.ErrorKind != "" }

type Journal struct {
	db         *sql.DB
	ftsEnabled bool
	mu         sync.Mutex
}

func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS exchanges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			user_id TEXT,
			prompt TEXT,
			reply TEXT,
			error_kind TEXT,
			started_at INTEGER,
			duration_ms INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_started ON exchanges(started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return j.ensureFTSTable()
}

func (j *Journal) ensureFTSTable() error {
	var sqlDef string
	err := j.db.QueryRow(`SELECT sql FROM sqlite_master WHERE name = 'exchanges_fts'`).Scan(&sqlDef)
	if err == nil {
		lower := strings.ToLower(sqlDef)
		j.ftsEnabled = strings.Contains(lower, "virtual table") && strings.Contains(lower, "fts5")
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(err, "inspect exchanges_fts table")
	}

	_, err = j.db.Exec(`CREATE VIRTUAL TABLE exchanges_fts USING fts5(prompt, reply);`)
	if err == nil {
		j.ftsEnabled = true
		return nil
	}
	if !strings.Contains(strings.ToLower(err.Error()), "no such module: fts5") {
		return errors.Wrap(err, "create exchanges_fts")
	}
	// sqlite builds without FTS5 search the exchanges table with LIKE.
	j.ftsEnabled = false
	return nil
}

func (j *Journal) Record(ctx context.Context, ex chat.Exchange) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin record tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO exchanges(session_id, seq, user_id, prompt, reply, error_kind, started_at, duration_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, ex.SessionID, ex.Seq, ex.UserID, ex.Prompt, ex.Reply, ex.ErrorKind, ex.StartedAt.Unix(), ex.Duration.Milliseconds())
	if err != nil {
		return errors.Wrap(err, "insert exchange")
	}
	if j.ftsEnabled {
		id, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "exchange row id")
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO exchanges_fts(rowid, prompt, reply) VALUES(?, ?, ?)`, id, ex.Prompt, ex.Reply); err != nil {
			return errors.Wrap(err, "insert exchange fts")
		}
	}
	return errors.Wrap(tx.Commit(), "commit record tx")
}

const selectColumns = `e.id, e.session_id, e.seq, COALESCE(e.user_id, ''), COALESCE(e.prompt, ''), COALESCE(e.reply, ''), COALESCE(e.error_kind, ''), COALESCE(e.started_at, 0), COALESCE(e.duration_ms, 0)`

func (j *Journal) List(ctx context.Context, query string, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	query = strings.TrimSpace(query)

	var (
		rows *sql.Rows
		err  error
	)
	switch {
	case query == "":
		rows, err = j.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM exchanges e ORDER BY e.id DESC LIMIT ?`, limit)
	case j.ftsEnabled:
		rows, err = j.searchFTS(ctx, query, limit)
		if err != nil {
			rows, err = j.searchLike(ctx, query, limit)
		}
	default:
		rows, err = j.searchLike(ctx, query, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "list exchanges")
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Seq, &e.UserID, &e.Prompt, &e.Reply, &e.ErrorKind, &e.StartedAt, &e.DurationMS); err != nil {
			return nil, errors.Wrap(err, "scan exchange row")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate exchange rows")
	}
	return out, nil
}

func (j *Journal) searchFTS(ctx context.Context, query string, limit int) (*sql.Rows, error) {
	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return nil, errors.New("empty fts query")
	}
	return j.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM exchanges e
		JOIN exchanges_fts f ON f.rowid = e.id
		WHERE exchanges_fts MATCH ?
		ORDER BY e.id DESC
		LIMIT ?
	`, ftsQuery, limit)
}

func (j *Journal) searchLike(ctx context.Context, query string, limit int) (*sql.Rows, error) {
	terms := tokenizeSearchTerms(query)
	if len(terms) == 0 {
		terms = []string{strings.ToLower(query)}
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + selectColumns + ` FROM exchanges e WHERE `)
	args := make([]any, 0, 2*len(terms)+1)
	for idx, term := range terms {
		if idx > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("(LOWER(e.prompt) LIKE ? OR LOWER(e.reply) LIKE ?)")
		args = append(args, "%"+term+"%", "%"+term+"%")
	}
	b.WriteString(` ORDER BY e.id DESC LIMIT ?`)
	args = append(args, limit)
	return j.db.QueryContext(ctx, b.String(), args...)
}

func buildFTSQuery(raw string) string {
	parts := tokenizeSearchTerms(raw)
	if len(parts) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ReplaceAll(p, `"`, "")
		if p == "" {
			continue
		}
		quoted = append(quoted, fmt.Sprintf(`"%s"*`, p))
	}
	return strings.Join(quoted, " AND ")
}

func tokenizeSearchTerms(raw string) []string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "`\"'.,:;!?()[]{}<>|")
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func FormatUnix(ts int64) string {
	if ts <= 0 {
		return "n/a"
	}
	return time.Unix(ts, 0).Local().Format("2006-01-02 15:04")
}
