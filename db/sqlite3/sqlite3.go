package sqlite3

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/qqgroup/go-group-backup/db"
	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
	"github.com/qqgroup/go-group-backup/modules/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	group_id    INTEGER PRIMARY KEY,
	captured_at INTEGER NOT NULL,
	data        TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS change_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id    INTEGER NOT NULL,
	occurred_at INTEGER NOT NULL,
	kind        TEXT    NOT NULL,
	subject_id  TEXT    NOT NULL,
	old_value   TEXT    NOT NULL DEFAULT '',
	new_value   TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_change_log_group ON change_log (group_id, id);
`

type database struct {
	path string
	db   *sql.DB
}

func init() {
	db.Register("sqlite3", func(node yaml.Node) db.Database {
		conf := new(config.SQLite3Config)
		_ = node.Decode(conf)
		if !conf.Enable {
			return nil
		}
		if conf.Path == "" {
			conf.Path = filepath.Join("data", "backup.db")
		}
		return New(conf.Path)
	})
}

// New 创建位于 path 的 sqlite 后端, 需调用 Open 后使用
func New(path string) db.Database {
	return &database{path: path}
}

func (s *database) Open() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create sqlite3 dir error")
	}
	dsn := filepath.Clean(s.path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	d, err := sql.Open("sqlite", dsn)
	if err != nil {
		return errors.Wrap(err, "open sqlite3 error")
	}
	if err = d.Ping(); err != nil {
		_ = d.Close()
		return errors.Wrap(err, "ping sqlite3 error")
	}
	if _, err = d.Exec(schema); err != nil {
		_ = d.Close()
		return errors.Wrap(err, "create sqlite3 table error")
	}
	log.Debugf("sqlite3 数据库已打开: %s", s.path)
	s.db = d
	return nil
}

func (s *database) Close() error {
	return s.db.Close()
}

func (s *database) Get(groupID int64) (*snapshot.GroupSnapshot, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM snapshots WHERE group_id = ?`, groupID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(snapshot.ErrNotFound, "group %d", groupID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query snapshot error")
	}
	ret := &snapshot.GroupSnapshot{}
	if err = json.Unmarshal([]byte(data), ret); err != nil {
		return nil, errors.Wrap(err, "decode snapshot error")
	}
	return ret, nil
}

func (s *database) Put(snap *snapshot.GroupSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode snapshot error")
	}
	_, err = s.db.Exec(`INSERT INTO snapshots (group_id, captured_at, data) VALUES (?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET captured_at = excluded.captured_at, data = excluded.data`,
		snap.GroupID, snap.CapturedAt.UnixNano(), string(data))
	return errors.Wrap(err, "insert snapshot error")
}

func (s *database) Delete(groupID int64) error {
	_, err := s.db.Exec(`DELETE FROM snapshots WHERE group_id = ?`, groupID)
	return errors.Wrap(err, "delete snapshot error")
}

func (s *database) Append(events ...changelog.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin tx error")
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.Prepare(`INSERT INTO change_log (group_id, occurred_at, kind, subject_id, old_value, new_value) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare insert error")
	}
	defer stmt.Close()
	for _, e := range events {
		if _, err = stmt.Exec(e.GroupID, e.OccurredAt.UnixNano(), string(e.Kind), e.SubjectID, e.OldValue, e.NewValue); err != nil {
			return errors.Wrap(err, "insert change event error")
		}
	}
	return errors.Wrap(tx.Commit(), "commit tx error")
}

func (s *database) List(groupID int64, since time.Time) ([]changelog.ChangeEvent, error) {
	query := `SELECT group_id, occurred_at, kind, subject_id, old_value, new_value FROM change_log WHERE group_id = ?`
	args := []interface{}{groupID}
	if !since.IsZero() {
		query += ` AND occurred_at >= ?`
		args = append(args, since.UnixNano())
	}
	rows, err := s.db.Query(query+` ORDER BY id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query change log error")
	}
	defer rows.Close()
	var events []changelog.ChangeEvent
	for rows.Next() {
		var (
			e    changelog.ChangeEvent
			at   int64
			kind string
		)
		if err = rows.Scan(&e.GroupID, &at, &kind, &e.SubjectID, &e.OldValue, &e.NewValue); err != nil {
			return nil, errors.Wrap(err, "scan change event error")
		}
		e.OccurredAt = time.Unix(0, at).UTC()
		e.Kind = changelog.Kind(kind)
		if !e.Kind.Valid() {
			return nil, errors.Errorf("unknown change event kind %q", kind)
		}
		events = append(events, e)
	}
	return events, errors.Wrap(rows.Err(), "iterate change log error")
}

func (s *database) Purge(groupID int64) error {
	_, err := s.db.Exec(`DELETE FROM change_log WHERE group_id = ?`, groupID)
	return errors.Wrap(err, "purge change log error")
}
