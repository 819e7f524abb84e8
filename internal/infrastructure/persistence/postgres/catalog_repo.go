package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG SOURCE IMPLEMENTATION
// The catalog is written by the content pipeline; the engine only reads it
// to compile skill graphs. All reads of one course happen in a single
// read-only transaction so a concurrent republish cannot produce a torn
// definition.
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements skillgraph.CatalogSource for PostgreSQL.
type CatalogRepository struct {
	conn *Connection
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

// LoadCourse returns the full raw definition of a course.
// Returns shared.ErrCourseNotFound when the course is unknown.
func (r *CatalogRepository) LoadCourse(ctx context.Context, courseID string) (*skillgraph.CourseDefinition, error) {
	def := &skillgraph.CourseDefinition{CourseID: courseID}

	err := r.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM courses WHERE id = $1)",
			courseID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check course existence: %w", err)
		}
		if !exists {
			return shared.ErrCourseNotFound
		}

		if def.Components, err = r.loadComponents(ctx, tx, courseID); err != nil {
			return err
		}
		if def.Objectives, err = r.loadObjectives(ctx, tx, courseID); err != nil {
			return err
		}
		if def.Objects, err = r.loadObjects(ctx, tx, courseID); err != nil {
			return err
		}
		if def.Prerequisites, err = r.loadPrerequisites(ctx, tx, courseID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return def, nil
}

// loadComponents loads all knowledge components of a course.
func (r *CatalogRepository) loadComponents(ctx context.Context, q Querier, courseID string) ([]skillgraph.KnowledgeComponent, error) {
	query := `
		SELECT id, slug, title, description, tags, created_at
		FROM knowledge_components
		WHERE course_id = $1
		ORDER BY slug
	`

	rows, err := q.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge components: %w", err)
	}
	defer rows.Close()

	var kcs []skillgraph.KnowledgeComponent
	for rows.Next() {
		var kc skillgraph.KnowledgeComponent
		var slug string
		err := rows.Scan(&kc.ID, &slug, &kc.Title, &kc.Description, &kc.Tags, &kc.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge component: %w", err)
		}
		kc.Slug = skillgraph.Slug(slug)
		kcs = append(kcs, kc)
	}

	return kcs, rows.Err()
}

// loadObjectives loads all learning objectives of a course.
func (r *CatalogRepository) loadObjectives(ctx context.Context, q Querier, courseID string) ([]skillgraph.LearningObjective, error) {
	query := `
		SELECT lo.id, lo.kc_id, lo.verb, lo.difficulty, lo.rubric
		FROM learning_objectives lo
		JOIN knowledge_components kc ON kc.id = lo.kc_id
		WHERE kc.course_id = $1
		ORDER BY lo.id
	`

	rows, err := q.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query learning objectives: %w", err)
	}
	defer rows.Close()

	var los []skillgraph.LearningObjective
	for rows.Next() {
		var lo skillgraph.LearningObjective
		var difficulty int
		var rubricJSON []byte
		err := rows.Scan(&lo.ID, &lo.KCID, &lo.Verb, &difficulty, &rubricJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learning objective: %w", err)
		}
		lo.Difficulty = skillgraph.Difficulty(difficulty)
		if len(rubricJSON) > 0 {
			if err := json.Unmarshal(rubricJSON, &lo.Rubric); err != nil {
				return nil, fmt.Errorf("failed to unmarshal rubric for lo %s: %w", lo.ID, err)
			}
		}
		los = append(los, lo)
	}

	return los, rows.Err()
}

// loadObjects loads all learning objects of a course. The content payload
// is decoded by the type discriminator column.
func (r *CatalogRepository) loadObjects(ctx context.Context, q Querier, courseID string) ([]skillgraph.ALO, error) {
	query := `
		SELECT alo.id, alo.lo_id, alo.type, alo.content, alo.est_time_sec, alo.difficulty, alo.tags
		FROM learning_objects alo
		JOIN learning_objectives lo ON lo.id = alo.lo_id
		JOIN knowledge_components kc ON kc.id = lo.kc_id
		WHERE kc.course_id = $1
		ORDER BY alo.id
	`

	rows, err := q.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query learning objects: %w", err)
	}
	defer rows.Close()

	var alos []skillgraph.ALO
	for rows.Next() {
		var alo skillgraph.ALO
		var aloType string
		var difficulty int
		var contentJSON []byte
		err := rows.Scan(&alo.ID, &alo.LOID, &aloType, &contentJSON, &alo.EstTimeSec, &difficulty, &alo.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learning object: %w", err)
		}

		alo.Type = skillgraph.ALOType(aloType)
		alo.Difficulty = skillgraph.Difficulty(difficulty)
		alo.Content, err = skillgraph.DecodeContent(alo.Type, contentJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode content for alo %s: %w", alo.ID, err)
		}
		alos = append(alos, alo)
	}

	return alos, rows.Err()
}

// loadPrerequisites loads all prerequisite edges of a course.
func (r *CatalogRepository) loadPrerequisites(ctx context.Context, q Querier, courseID string) ([]skillgraph.Prerequisite, error) {
	query := `
		SELECT p.kc_id, p.prereq_kc_id
		FROM prerequisites p
		JOIN knowledge_components kc ON kc.id = p.kc_id
		WHERE kc.course_id = $1
		ORDER BY p.kc_id, p.prereq_kc_id
	`

	rows, err := q.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prerequisites: %w", err)
	}
	defer rows.Close()

	var edges []skillgraph.Prerequisite
	for rows.Next() {
		var edge skillgraph.Prerequisite
		if err := rows.Scan(&edge.KCID, &edge.PrereqKCID); err != nil {
			return nil, fmt.Errorf("failed to scan prerequisite edge: %w", err)
		}
		edges = append(edges, edge)
	}

	return edges, rows.Err()
}
