package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

type Repository interface {
	CreateVideo(ctx context.Context, video *Video) error
	GetVideo(ctx context.Context, id string) (*Video, error)
	ListVideos(ctx context.Context) ([]*Video, error)
	DeleteVideo(ctx context.Context, id string) error
	TransitionVideo(ctx context.Context, id string, from, to VideoStatus, errorMsg string) error
	ResetVideo(ctx context.Context, id string) error
	UpdateVideoMedia(ctx context.Context, id string, duration, frameRate float64) error
	UpdateVideoLanguage(ctx context.Context, id, language string) error

	SaveTranscript(ctx context.Context, videoID string, segments []TranscriptSegment) ([]TranscriptSegment, error)
	ListSegments(ctx context.Context, videoID string) ([]TranscriptSegment, error)
	GetSegmentsByID(ctx context.Context, ids []int64) (map[int64]TranscriptSegment, error)

	SaveAnalysis(ctx context.Context, videoID string, analysis *Analysis) (*HighlightSet, error)
	GetSummary(ctx context.Context, videoID string) (*Summary, error)
	ListChapters(ctx context.Context, videoID string) ([]Chapter, error)

	GetHighlightSet(ctx context.Context, id string) (*HighlightSet, error)
	GetHighlightSetByVideo(ctx context.Context, videoID string) (*HighlightSet, error)
	ListHighlightClips(ctx context.Context, setID string) ([]HighlightClip, error)
	UpdateHighlightSet(ctx context.Context, id, status, filePath, errorMsg string) error

	SaveEmbeddings(ctx context.Context, videoID string, embeddings []Embedding) error
	ListEmbeddings(ctx context.Context, videoID string) ([]Embedding, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const videoColumns = `id, filename, path, duration, frame_rate, language, status, error_message, created_at, updated_at`

func (r *SQLiteRepository) CreateVideo(ctx context.Context, v *Video) error {
	if v.Status == "" {
		v.Status = StatusUploaded
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = v.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (`+videoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.Filename, v.Path, v.Duration, v.FrameRate, nullString(v.Language), string(v.Status),
		nullString(v.ErrorMessage), formatTime(v.CreatedAt), formatTime(v.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetVideo(ctx context.Context, id string) (*Video, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *SQLiteRepository) ListVideos(ctx context.Context) ([]*Video, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func scanVideo(row rowScanner) (*Video, error) {
	var v Video
	var status string
	var language, errMsg sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&v.ID, &v.Filename, &v.Path, &v.Duration, &v.FrameRate, &language, &status,
		&errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	v.Status = VideoStatus(status)
	v.Language = language.String
	v.ErrorMessage = errMsg.String
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

func (r *SQLiteRepository) DeleteVideo(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM videos WHERE id = ?", id)
	return err
}

// TransitionVideo moves a video from one status to the next as a compare-and-set.
// The error message is only written when the target is failed.
func (r *SQLiteRepository) TransitionVideo(ctx context.Context, id string, from, to VideoStatus, errorMsg string) error {
	if err := checkTransition(from, to); err != nil {
		return err
	}

	now := formatTime(time.Now().UTC())
	var res sql.Result
	var err error
	if to == StatusFailed {
		res, err = r.db.ExecContext(ctx, `
			UPDATE videos SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND status = ?
		`, string(to), errorMsg, now, id, string(from))
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE videos SET status = ?, updated_at = ? WHERE id = ? AND status = ?
		`, string(to), now, id, string(from))
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: video %s is not %s", ErrInvalidTransition, id, from)
	}
	return nil
}

// ResetVideo drops every derived record of a video that is not in flight and
// puts it back to uploaded with the error cleared.
func (r *SQLiteRepository) ResetVideo(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE videos SET status = 'uploaded', error_message = NULL, updated_at = ?
		WHERE id = ? AND status IN ('uploaded', 'completed', 'failed')
	`, formatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: video %s cannot be reset", ErrInvalidTransition, id)
	}

	for _, stmt := range []string{
		"DELETE FROM highlight_sets WHERE video_id = ?",
		"DELETE FROM chapters WHERE video_id = ?",
		"DELETE FROM summaries WHERE video_id = ?",
		"DELETE FROM embeddings WHERE video_id = ?",
		"DELETE FROM transcript_segments WHERE video_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *SQLiteRepository) UpdateVideoMedia(ctx context.Context, id string, duration, frameRate float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE videos SET duration = ?, frame_rate = ?, updated_at = ? WHERE id = ?
	`, duration, frameRate, formatTime(time.Now().UTC()), id)
	return err
}

func (r *SQLiteRepository) UpdateVideoLanguage(ctx context.Context, id, language string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE videos SET language = ?, updated_at = ? WHERE id = ?
	`, nullString(language), formatTime(time.Now().UTC()), id)
	return err
}

// SaveTranscript writes all segments of a video in one transaction and returns
// them with their assigned IDs.
func (r *SQLiteRepository) SaveTranscript(ctx context.Context, videoID string, segments []TranscriptSegment) ([]TranscriptSegment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transcript_segments (video_id, segment_index, start_time, end_time, text, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	saved := make([]TranscriptSegment, len(segments))
	for i, s := range segments {
		var confidence sql.NullFloat64
		if s.Confidence != nil {
			confidence = sql.NullFloat64{Float64: *s.Confidence, Valid: true}
		}
		res, err := stmt.ExecContext(ctx, videoID, s.Index, s.StartTime, s.EndTime, s.Text, confidence)
		if err != nil {
			return nil, fmt.Errorf("insert segment %d: %w", s.Index, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		s.ID = id
		s.VideoID = videoID
		saved[i] = s
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

const segmentColumns = `id, video_id, segment_index, start_time, end_time, text, confidence`

func (r *SQLiteRepository) ListSegments(ctx context.Context, videoID string) ([]TranscriptSegment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+segmentColumns+` FROM transcript_segments WHERE video_id = ? ORDER BY segment_index ASC
	`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []TranscriptSegment
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

func (r *SQLiteRepository) GetSegmentsByID(ctx context.Context, ids []int64) (map[int64]TranscriptSegment, error) {
	out := make(map[int64]TranscriptSegment, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+segmentColumns+` FROM transcript_segments WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

func scanSegment(row rowScanner) (TranscriptSegment, error) {
	var s TranscriptSegment
	var confidence sql.NullFloat64
	if err := row.Scan(&s.ID, &s.VideoID, &s.Index, &s.StartTime, &s.EndTime, &s.Text, &confidence); err != nil {
		return s, err
	}
	if confidence.Valid {
		c := confidence.Float64
		s.Confidence = &c
	}
	return s, nil
}

// SaveAnalysis replaces the summary, chapters and highlight set of a video in
// one transaction. The new highlight set starts out pending.
func (r *SQLiteRepository) SaveAnalysis(ctx context.Context, videoID string, a *Analysis) (*HighlightSet, error) {
	keywords := a.Summary.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	keywordsJSON, err := json.Marshal(keywords)
	if err != nil {
		return nil, fmt.Errorf("encode keywords: %w", err)
	}

	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM highlight_sets WHERE video_id = ?",
		"DELETE FROM chapters WHERE video_id = ?",
		"DELETE FROM summaries WHERE video_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, videoID); err != nil {
			return nil, err
		}
	}

	origin := a.Summary.Origin
	if origin == "" {
		origin = AnalysisOriginModel
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO summaries (video_id, full_text, brief, keywords, origin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, videoID, a.Summary.Full, a.Summary.Brief, string(keywordsJSON), origin, formatTime(now)); err != nil {
		return nil, fmt.Errorf("insert summary: %w", err)
	}

	for i, c := range a.Chapters {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chapters (video_id, chapter_index, title, summary, start_time, end_time)
			VALUES (?, ?, ?, ?, ?, ?)
		`, videoID, i, c.Title, c.Summary, c.StartTime, c.EndTime); err != nil {
			return nil, fmt.Errorf("insert chapter %d: %w", i, err)
		}
	}

	set := &HighlightSet{
		ID:        NewID(),
		VideoID:   videoID,
		Status:    HighlightStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO highlight_sets (id, video_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, set.ID, videoID, set.Status, formatTime(now), formatTime(now)); err != nil {
		return nil, fmt.Errorf("insert highlight set: %w", err)
	}

	for i, c := range a.Clips {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO highlight_clips (highlight_set_id, clip_index, start_time, end_time, category, reason, excerpt)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, set.ID, i, c.StartTime, c.EndTime, c.Category, c.Reason, c.Excerpt); err != nil {
			return nil, fmt.Errorf("insert highlight clip %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return set, nil
}

func (r *SQLiteRepository) GetSummary(ctx context.Context, videoID string) (*Summary, error) {
	var s Summary
	var keywords, createdAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT video_id, full_text, brief, keywords, origin, created_at FROM summaries WHERE video_id = ?
	`, videoID).Scan(&s.VideoID, &s.Full, &s.Brief, &keywords, &s.Origin, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keywords), &s.Keywords); err != nil {
		return nil, fmt.Errorf("decode keywords: %w", err)
	}
	s.CreatedAt = parseTime(createdAt)
	return &s, nil
}

func (r *SQLiteRepository) ListChapters(ctx context.Context, videoID string) ([]Chapter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, video_id, chapter_index, title, summary, start_time, end_time
		FROM chapters WHERE video_id = ? ORDER BY chapter_index ASC
	`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []Chapter
	for rows.Next() {
		var c Chapter
		if err := rows.Scan(&c.ID, &c.VideoID, &c.Index, &c.Title, &c.Summary, &c.StartTime, &c.EndTime); err != nil {
			return nil, err
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

const highlightSetColumns = `id, video_id, status, file_path, error_message, created_at, updated_at`

func (r *SQLiteRepository) GetHighlightSet(ctx context.Context, id string) (*HighlightSet, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+highlightSetColumns+` FROM highlight_sets WHERE id = ?`, id)
	return scanHighlightSet(row)
}

func (r *SQLiteRepository) GetHighlightSetByVideo(ctx context.Context, videoID string) (*HighlightSet, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+highlightSetColumns+` FROM highlight_sets WHERE video_id = ?`, videoID)
	return scanHighlightSet(row)
}

func scanHighlightSet(row *sql.Row) (*HighlightSet, error) {
	var s HighlightSet
	var filePath, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&s.ID, &s.VideoID, &s.Status, &filePath, &errMsg, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.FilePath = filePath.String
	s.Error = errMsg.String
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

func (r *SQLiteRepository) ListHighlightClips(ctx context.Context, setID string) ([]HighlightClip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, highlight_set_id, clip_index, start_time, end_time, category, reason, excerpt
		FROM highlight_clips WHERE highlight_set_id = ? ORDER BY clip_index ASC
	`, setID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []HighlightClip
	for rows.Next() {
		var c HighlightClip
		if err := rows.Scan(&c.ID, &c.HighlightSetID, &c.Index, &c.StartTime, &c.EndTime,
			&c.Category, &c.Reason, &c.Excerpt); err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

func (r *SQLiteRepository) UpdateHighlightSet(ctx context.Context, id, status, filePath, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE highlight_sets SET status = ?, file_path = ?, error_message = ?, updated_at = ? WHERE id = ?
	`, status, nullString(filePath), nullString(errorMsg), formatTime(time.Now().UTC()), id)
	return err
}

func (r *SQLiteRepository) SaveEmbeddings(ctx context.Context, videoID string, embeddings []Embedding) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO embeddings (segment_id, video_id, dimension, vector) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range embeddings {
		if _, err := stmt.ExecContext(ctx, e.SegmentID, videoID, len(e.Vector.Slice()), e.Vector); err != nil {
			return fmt.Errorf("insert embedding for segment %d: %w", e.SegmentID, err)
		}
	}

	return tx.Commit()
}

// ListEmbeddings returns stored vectors in segment order. An empty videoID
// lists every video.
func (r *SQLiteRepository) ListEmbeddings(ctx context.Context, videoID string) ([]Embedding, error) {
	query := `
		SELECT e.segment_id, e.video_id, s.segment_index, e.vector
		FROM embeddings e JOIN transcript_segments s ON s.id = e.segment_id`
	var args []any
	if videoID != "" {
		query += ` WHERE e.video_id = ?`
		args = append(args, videoID)
	}
	query += ` ORDER BY e.segment_id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var embeddings []Embedding
	for rows.Next() {
		var e Embedding
		var vec pgvector.Vector
		if err := rows.Scan(&e.SegmentID, &e.VideoID, &e.SegmentIndex, &vec); err != nil {
			return nil, err
		}
		e.Vector = vec
		embeddings = append(embeddings, e)
	}
	return embeddings, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
