package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Chapter status values.
const (
	ChapterPlanned            = "planned"
	ChapterTranscriptProvided = "transcript_provided"
	ChapterDrafted            = "drafted"
)

type Project struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CurrentStage string    `json:"current_stage"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Chapter struct {
	ProjectID     string    `json:"project_id"`
	Number        int       `json:"chapter_number"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary,omitempty"`
	KeyTopics     []string  `json:"key_topics,omitempty"`
	Transcript    string    `json:"raw_transcript,omitempty"`
	GapReport     string    `json:"gap_report,omitempty"`
	DraftMarkdown string    `json:"draft_markdown,omitempty"`
	DraftHTML     string    `json:"draft_html,omitempty"`
	Status        string    `json:"status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type chapterPlan struct {
	Summary   string   `json:"summary,omitempty"`
	KeyTopics []string `json:"key_topics"`
}

// ArtifactRepository stores the finished products of each stage keyed by
// project id.
type ArtifactRepository struct {
	db *DB
}

func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureProject(ctx context.Context, ex execer, id, title string) error {
	ts := now()
	_, err := ex.ExecContext(ctx, `
		INSERT INTO book_projects (id, title, current_stage, created_at, updated_at)
		VALUES (?, ?, 'profiling', ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = CASE WHEN excluded.title <> '' THEN excluded.title ELSE book_projects.title END,
			updated_at = excluded.updated_at`,
		id, title, ts, ts)
	return err
}

// EnsureProject creates the project row if missing. A non-empty title
// replaces the stored one.
func (r *ArtifactRepository) EnsureProject(ctx context.Context, id, title string) error {
	if err := ensureProject(ctx, r.db, id, title); err != nil {
		return fmt.Errorf("storage: ensure project %s: %w", id, err)
	}
	return nil
}

// UpdateStage records the stage the project has reached.
func (r *ArtifactRepository) UpdateStage(ctx context.Context, id, stage, title string) error {
	if err := ensureProject(ctx, r.db, id, title); err != nil {
		return fmt.Errorf("storage: update stage %s: %w", id, err)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE book_projects SET current_stage = ?, updated_at = ? WHERE id = ?`, stage, now(), id)
	if err != nil {
		return fmt.Errorf("storage: update stage %s: %w", id, err)
	}
	return nil
}

func (r *ArtifactRepository) Project(ctx context.Context, id string) (Project, error) {
	var (
		p                Project
		created, updated string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, current_stage, created_at, updated_at FROM book_projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &p.CurrentStage, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("storage: project %s: %w", id, err)
	}
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

func (r *ArtifactRepository) SaveAuthorProfile(ctx context.Context, projectID, title string, fields map[string]string) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureProject(ctx, tx, projectID, title); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO author_profiles (project_id, profile_json, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(project_id) DO UPDATE SET
				profile_json = excluded.profile_json, updated_at = excluded.updated_at`,
			projectID, string(data), now())
		return err
	})
}

func (r *ArtifactRepository) AuthorProfile(ctx context.Context, projectID string) (map[string]string, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT profile_json FROM author_profiles WHERE project_id = ?`, projectID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("storage: decode author profile: %w", err)
	}
	return out, nil
}

func (r *ArtifactRepository) SaveAudiencePersona(ctx context.Context, projectID, persona string, questions int) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureProject(ctx, tx, projectID, ""); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audience_personas (project_id, persona, questions_asked, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(project_id) DO UPDATE SET
				persona = excluded.persona,
				questions_asked = excluded.questions_asked,
				updated_at = excluded.updated_at`,
			projectID, persona, questions, now())
		return err
	})
}

func (r *ArtifactRepository) AudiencePersona(ctx context.Context, projectID string) (string, error) {
	var persona string
	err := r.db.QueryRowContext(ctx,
		`SELECT persona FROM audience_personas WHERE project_id = ?`, projectID).Scan(&persona)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return persona, err
}

// SavePlannedChapters writes the chapter outline. Existing chapters keep
// their transcript, draft and status.
func (r *ArtifactRepository) SavePlannedChapters(ctx context.Context, projectID string, chapters []Chapter) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureProject(ctx, tx, projectID, ""); err != nil {
			return err
		}
		for _, c := range chapters {
			plan, err := json.Marshal(chapterPlan{Summary: c.Summary, KeyTopics: nonNil(c.KeyTopics)})
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO chapters (project_id, chapter_number, title, plan_json, status, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(project_id, chapter_number) DO UPDATE SET
					title = excluded.title,
					plan_json = excluded.plan_json,
					updated_at = excluded.updated_at`,
				projectID, c.Number, c.Title, string(plan), ChapterPlanned, now())
			if err != nil {
				return fmt.Errorf("chapter %d: %w", c.Number, err)
			}
		}
		return nil
	})
}

// SaveTranscript stores an interview transcript and its gap report.
func (r *ArtifactRepository) SaveTranscript(ctx context.Context, projectID string, number int, transcript, gapReport string) error {
	return r.upsertChapterText(ctx, projectID, number, `
		raw_transcript = excluded.raw_transcript,
		gap_report_json = excluded.gap_report_json,
		status = CASE WHEN chapters.status = 'drafted' THEN chapters.status ELSE excluded.status END,
		updated_at = excluded.updated_at`,
		"", transcript, gapReport, "", "", ChapterTranscriptProvided)
}

// SaveDraft stores an approved chapter draft. A non-empty title renames the
// chapter.
func (r *ArtifactRepository) SaveDraft(ctx context.Context, projectID string, number int, title, markdown, html string) error {
	return r.upsertChapterText(ctx, projectID, number, `
		draft_markdown = excluded.draft_markdown,
		draft_html = excluded.draft_html,
		status = excluded.status,
		updated_at = excluded.updated_at`,
		title, "", "", markdown, html, ChapterDrafted)
}

func (r *ArtifactRepository) upsertChapterText(ctx context.Context, projectID string, number int, set string,
	title, transcript, gaps, markdown, html, status string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureProject(ctx, tx, projectID, ""); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chapters (project_id, chapter_number, title, raw_transcript, gap_report_json,
				draft_markdown, draft_html, status, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, chapter_number) DO UPDATE SET`+set,
			projectID, number, "Chapter "+strconv.Itoa(number), transcript, gaps, markdown, html, status, now())
		if err != nil || title == "" {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE chapters SET title = ? WHERE project_id = ? AND chapter_number = ?`,
			title, projectID, number)
		return err
	})
}

const chapterColumns = `project_id, chapter_number, title, plan_json, raw_transcript, gap_report_json,
	draft_markdown, draft_html, status, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanChapter(s scanner) (Chapter, error) {
	var (
		c       Chapter
		plan    string
		updated string
	)
	if err := s.Scan(&c.ProjectID, &c.Number, &c.Title, &plan, &c.Transcript, &c.GapReport,
		&c.DraftMarkdown, &c.DraftHTML, &c.Status, &updated); err != nil {
		return Chapter{}, err
	}
	var p chapterPlan
	if plan != "" {
		if err := json.Unmarshal([]byte(plan), &p); err != nil {
			return Chapter{}, fmt.Errorf("storage: decode chapter plan: %w", err)
		}
	}
	c.Summary = p.Summary
	c.KeyTopics = p.KeyTopics
	c.UpdatedAt = parseTime(updated)
	return c, nil
}

func (r *ArtifactRepository) Chapter(ctx context.Context, projectID string, number int) (Chapter, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE project_id = ? AND chapter_number = ?`, projectID, number)
	c, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Chapter{}, ErrNotFound
	}
	return c, err
}

func (r *ArtifactRepository) Chapters(ctx context.Context, projectID string) ([]Chapter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE project_id = ? ORDER BY chapter_number`, projectID)
	if err != nil {
		return nil, fmt.Errorf("storage: chapters %s: %w", projectID, err)
	}
	defer rows.Close()

	out := []Chapter{}
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ArtifactRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("storage: %w", err)
	}
	return tx.Commit()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
