// Package journal records interaction steps in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/organization-ai-projects/ai-search/internal/learner"
	"github.com/organization-ai-projects/ai-search/internal/repo"
)

const schema = `
CREATE TABLE IF NOT EXISTS steps(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts REAL NOT NULL,
	step INTEGER NOT NULL,
	domain TEXT NOT NULL,
	commit_used TEXT NOT NULL,
	score REAL NOT NULL,
	reevaluated INTEGER NOT NULL,
	param TEXT,
	delta TEXT,
	new_commit TEXT,
	forked INTEGER NOT NULL,
	packed INTEGER NOT NULL,
	evicted TEXT,
	consolidated INTEGER NOT NULL,
	pool TEXT NOT NULL
)`

// Entry is one recorded step.
type Entry struct {
	ID           int64           `json:"id"`
	Time         time.Time       `json:"time"`
	Step         int             `json:"step"`
	Domain       string          `json:"domain"`
	CommitUsed   repo.CommitID   `json:"commit_used"`
	Score        float32         `json:"score"`
	Reevaluated  bool            `json:"reevaluated"`
	Param        string          `json:"param,omitempty"`
	Delta        string          `json:"delta,omitempty"`
	NewCommit    repo.CommitID   `json:"new_commit,omitempty"`
	Forked       bool            `json:"forked"`
	Packed       bool            `json:"packed"`
	Evicted      repo.CommitID   `json:"evicted,omitempty"`
	Consolidated bool            `json:"consolidated"`
	Pool         []repo.CommitID `json:"pool"`
}

// Journal is a step log backed by SQLite. It implements learner.Recorder.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

var _ learner.Recorder = (*Journal)(nil)

// Open opens or creates the journal at path. ":memory:" keeps it in memory.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init journal: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends a step.
func (j *Journal) Record(ctx context.Context, res learner.StepResult) error {
	pool, err := json.Marshal(res.Pool)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO steps(ts, step, domain, commit_used, score, reevaluated, param, delta,
			new_commit, forked, packed, evicted, consolidated, pool)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		float64(j.now().UnixMilli())/1000.0,
		res.Step,
		res.Domain,
		string(res.Response.CommitUsed),
		float64(res.Response.Score),
		res.Response.Reevaluated,
		res.Param,
		res.Delta,
		string(res.NewCommit),
		res.Forked,
		res.Packed,
		string(res.Evicted),
		res.Consolidated,
		string(pool),
	)
	if err != nil {
		return fmt.Errorf("record step %d: %w", res.Step, err)
	}
	return nil
}

// Recent returns up to n entries in chronological order.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, ts, step, domain, commit_used, score, reevaluated, param, delta,
			new_commit, forked, packed, evicted, consolidated, pool
		FROM steps ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                       Entry
			ts, score               float64
			commitUsed, pool        string
			param, d, newC, evicted sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Step, &e.Domain, &commitUsed, &score, &e.Reevaluated,
			&param, &d, &newC, &e.Forked, &e.Packed, &evicted, &e.Consolidated, &pool); err != nil {
			return nil, err
		}
		e.Time = time.UnixMilli(int64(ts * 1000))
		e.Score = float32(score)
		e.CommitUsed = repo.CommitID(commitUsed)
		e.Param = param.String
		e.Delta = d.String
		e.NewCommit = repo.CommitID(newC.String)
		e.Evicted = repo.CommitID(evicted.String)
		if err := json.Unmarshal([]byte(pool), &e.Pool); err != nil {
			return nil, fmt.Errorf("entry %d pool: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// Count returns the number of recorded steps.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps`).Scan(&n)
	return n, err
}
