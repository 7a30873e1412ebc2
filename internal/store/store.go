package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("not found")

// SQLStore reads annotations, flags and moderation state from Postgres or
// sqlite. Queries are written with "?" placeholders and rebound per dialect.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	log     *zap.Logger
}

func NewSQLStore(db *sql.DB, dialect Dialect, log *zap.Logger) *SQLStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLStore{db: db, dialect: dialect, log: log.With(zap.String("module", "store"))}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inClause returns "?, ?, ..." and the args for a deduplicated id list.
func inClause(ids []string) (string, []any) {
	seen := make(map[string]struct{}, len(ids))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		args = append(args, id)
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", "), args
}

const annotationColumns = `
	a.id, a.userid, a.target_uri, a.text, a.tags, a.target_selectors, a.refs,
	a.document_id, d.title, a.created, a.updated`

const annotationFrom = `
	FROM annotations a
	LEFT JOIN documents d ON d.id = a.document_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnnotation(row rowScanner) (Annotation, error) {
	var (
		item             Annotation
		tags, selectors  string
		refs, documentID sql.NullString
		title            sql.NullString
		created, updated string
	)
	if err := row.Scan(&item.ID, &item.UserID, &item.TargetURI, &item.Text, &tags, &selectors, &refs,
		&documentID, &title, &created, &updated); err != nil {
		return Annotation{}, err
	}

	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		return Annotation{}, fmt.Errorf("decode tags of %s: %w", item.ID, err)
	}
	if err := json.Unmarshal([]byte(selectors), &item.Targets); err != nil {
		return Annotation{}, fmt.Errorf("decode targets of %s: %w", item.ID, err)
	}
	if refs.Valid {
		item.References = json.RawMessage(refs.String)
	}
	if documentID.Valid {
		item.Document = &Document{ID: documentID.String, Title: title.String}
	}

	var err error
	if item.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Annotation{}, fmt.Errorf("decode created of %s: %w", item.ID, err)
	}
	if item.Updated, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return Annotation{}, fmt.Errorf("decode updated of %s: %w", item.ID, err)
	}
	return item, nil
}

// FetchOrdered loads the annotations for ids and returns them in the order
// of ids, repeating duplicates. Unknown ids are skipped.
func (s *SQLStore) FetchOrdered(ctx context.Context, ids []string) ([]Annotation, error) {
	if len(ids) == 0 {
		return []Annotation{}, nil
	}
	placeholders, args := inClause(ids)
	query := `SELECT ` + annotationColumns + annotationFrom + ` WHERE a.id IN (` + placeholders + `)`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("fetch annotations: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Annotation, len(args))
	for rows.Next() {
		item, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		byID[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}

	items := make([]Annotation, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	if missing := len(ids) - len(items); missing > 0 {
		s.log.Debug("fetch skipped unknown annotations", zap.Int("missing", missing))
	}
	return items, nil
}

func (s *SQLStore) GetAnnotation(ctx context.Context, id string) (Annotation, error) {
	query := `SELECT ` + annotationColumns + annotationFrom + ` WHERE a.id = ?`
	item, err := scanAnnotation(s.db.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Annotation{}, ErrNotFound
	}
	if err != nil {
		return Annotation{}, fmt.Errorf("get annotation: %w", err)
	}
	return item, nil
}

// ListAnnotationsAfter pages through all annotations by id for reindexing.
func (s *SQLStore) ListAnnotationsAfter(ctx context.Context, afterID string, limit int) ([]Annotation, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + annotationColumns + annotationFrom + ` WHERE a.id > ? ORDER BY a.id LIMIT ` + strconv.Itoa(limit)
	rows, err := s.db.QueryContext(ctx, s.rebind(query), afterID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	items := make([]Annotation, 0, limit)
	for rows.Next() {
		item, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}
	return items, nil
}

// FlagCounts counts flaggers per annotation. Every requested id is present in
// the result; annotations nobody flagged count 0.
func (s *SQLStore) FlagCounts(ctx context.Context, ids []string) (map[string]int, error) {
	counts := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT annotation_id, COUNT(*)
		FROM flags
		WHERE annotation_id IN (`+placeholders+`)
		GROUP BY annotation_id
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("count flags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan flag count: %w", err)
		}
		counts[id] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flag counts: %w", err)
	}
	for _, id := range ids {
		if _, ok := counts[id]; !ok {
			counts[id] = 0
		}
	}
	return counts, nil
}

func (s *SQLStore) FlagCount(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM flags WHERE annotation_id = ?`), id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count flags: %w", err)
	}
	return count, nil
}

// FlaggedBy reports which of ids userID has flagged. Every requested id is
// present in the result.
func (s *SQLStore) FlaggedBy(ctx context.Context, userID string, ids []string) (map[string]bool, error) {
	flagged := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return flagged, nil
	}
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT annotation_id
		FROM flags
		WHERE userid = ? AND annotation_id IN (`+placeholders+`)
	`), append([]any{userID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("list user flags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user flag: %w", err)
		}
		flagged[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user flags: %w", err)
	}
	for _, id := range ids {
		if _, ok := flagged[id]; !ok {
			flagged[id] = false
		}
	}
	return flagged, nil
}

func (s *SQLStore) IsFlaggedBy(ctx context.Context, userID, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM flags WHERE userid = ? AND annotation_id = ?`), userID, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check user flag: %w", err)
	}
	return count > 0, nil
}

// HiddenFor reports moderator-hidden state for ids. Every requested id is
// present in the result.
func (s *SQLStore) HiddenFor(ctx context.Context, ids []string) (map[string]bool, error) {
	hidden := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return hidden, nil
	}
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT annotation_id FROM annotation_moderation WHERE annotation_id IN (`+placeholders+`)
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("list moderation: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan moderation: %w", err)
		}
		hidden[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moderation: %w", err)
	}
	for _, id := range ids {
		if _, ok := hidden[id]; !ok {
			hidden[id] = false
		}
	}
	return hidden, nil
}

func (s *SQLStore) Hidden(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM annotation_moderation WHERE annotation_id = ?`), id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check moderation: %w", err)
	}
	return count > 0, nil
}

func (s *SQLStore) InsertDocument(ctx context.Context, item Document) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO documents (id, title) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title
	`), item.ID, item.Title)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertAnnotation(ctx context.Context, item Annotation) error {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	targets := item.Targets
	if targets == nil {
		targets = []Target{}
	}
	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return fmt.Errorf("encode targets: %w", err)
	}

	var refs, documentID any
	if len(item.References) > 0 {
		refs = string(item.References)
	}
	if item.Document != nil {
		if err := s.InsertDocument(ctx, *item.Document); err != nil {
			return err
		}
		documentID = item.Document.ID
	}

	created := item.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := item.Updated
	if updated.IsZero() {
		updated = created
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO annotations (id, userid, target_uri, text, tags, target_selectors, refs, document_id, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), item.ID, item.UserID, item.TargetURI, item.Text, string(tagsJSON), string(targetsJSON), refs, documentID,
		created.Format(time.RFC3339Nano), updated.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert annotation: %w", err)
	}
	return nil
}

// AddFlag records userID flagging an annotation. Flagging twice is a no-op.
func (s *SQLStore) AddFlag(ctx context.Context, annotationID, userID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO flags (annotation_id, userid, created) VALUES (?, ?, ?)
		ON CONFLICT (annotation_id, userid) DO NOTHING
	`), annotationID, userID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add flag: %w", err)
	}
	return nil
}

func (s *SQLStore) SetHidden(ctx context.Context, annotationID string, hidden bool) error {
	var err error
	if hidden {
		_, err = s.db.ExecContext(ctx, s.rebind(`
			INSERT INTO annotation_moderation (annotation_id, created) VALUES (?, ?)
			ON CONFLICT (annotation_id) DO NOTHING
		`), annotationID, time.Now().UTC().Format(time.RFC3339Nano))
	} else {
		_, err = s.db.ExecContext(ctx, s.rebind(`DELETE FROM annotation_moderation WHERE annotation_id = ?`), annotationID)
	}
	if err != nil {
		return fmt.Errorf("set moderation: %w", err)
	}
	return nil
}
