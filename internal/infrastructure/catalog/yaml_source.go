// Package catalog implements file-based catalog sources. The YAML source is
// used in development and in single-tenant deployments where the content
// pipeline publishes course files instead of writing to Postgres.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

// ══════════════════════════════════════════════════════════════════════════════
// YAML COURSE SOURCE
// One course per file: <dir>/<course_id>.yaml. The file layout mirrors the
// catalog tables, with ALO content as a free-form mapping decoded by type.
// ══════════════════════════════════════════════════════════════════════════════

// YAMLSource implements skillgraph.CatalogSource over a directory of
// course files.
type YAMLSource struct {
	dir string
}

// NewYAMLSource creates a YAMLSource reading from dir.
func NewYAMLSource(dir string) *YAMLSource {
	return &YAMLSource{dir: dir}
}

// yamlCourse is the on-disk course file layout.
type yamlCourse struct {
	CourseID      string          `yaml:"course_id"`
	Title         string          `yaml:"title"`
	Components    []yamlComponent `yaml:"knowledge_components"`
	Objectives    []yamlObjective `yaml:"learning_objectives"`
	Objects       []yamlObject    `yaml:"learning_objects"`
	Prerequisites []yamlEdge      `yaml:"prerequisites"`
}

type yamlComponent struct {
	ID          string   `yaml:"id"`
	Slug        string   `yaml:"slug"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

type yamlObjective struct {
	ID         string   `yaml:"id"`
	KCID       string   `yaml:"kc_id"`
	Verb       string   `yaml:"verb"`
	Difficulty int      `yaml:"difficulty"`
	Rubric     struct {
		Criteria      []string `yaml:"criteria"`
		PassThreshold float64  `yaml:"pass_threshold"`
	} `yaml:"rubric"`
}

type yamlObject struct {
	ID         string         `yaml:"id"`
	LOID       string         `yaml:"lo_id"`
	Type       string         `yaml:"type"`
	Content    map[string]any `yaml:"content"`
	EstTimeSec int            `yaml:"est_time_sec"`
	Difficulty int            `yaml:"difficulty"`
	Tags       []string       `yaml:"tags"`
}

type yamlEdge struct {
	KCID       string `yaml:"kc_id"`
	PrereqKCID string `yaml:"prereq_kc_id"`
}

// LoadCourse returns the full raw definition of a course.
// Returns shared.ErrCourseNotFound when no course file exists.
func (s *YAMLSource) LoadCourse(ctx context.Context, courseID string) (*skillgraph.CourseDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, courseID+".yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, shared.ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read course file %s: %w", path, err)
	}

	var doc yamlCourse
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse course file %s: %w", path, err)
	}
	if doc.CourseID != "" && doc.CourseID != courseID {
		return nil, fmt.Errorf("course file %s declares course_id %q", path, doc.CourseID)
	}

	return s.toDefinition(courseID, doc)
}

// toDefinition converts the file layout to the domain definition.
// Structural validation (graph shape, content schemas) is left to
// skillgraph.Build.
func (s *YAMLSource) toDefinition(courseID string, doc yamlCourse) (*skillgraph.CourseDefinition, error) {
	def := &skillgraph.CourseDefinition{CourseID: courseID}
	now := time.Now().UTC()

	for _, c := range doc.Components {
		def.Components = append(def.Components, skillgraph.KnowledgeComponent{
			ID:          c.ID,
			Slug:        skillgraph.Slug(c.Slug),
			Title:       c.Title,
			Description: c.Description,
			Tags:        c.Tags,
			CreatedAt:   now,
		})
	}

	for _, o := range doc.Objectives {
		def.Objectives = append(def.Objectives, skillgraph.LearningObjective{
			ID:         o.ID,
			KCID:       o.KCID,
			Verb:       o.Verb,
			Difficulty: skillgraph.Difficulty(o.Difficulty),
			Rubric: skillgraph.Rubric{
				Criteria:      o.Rubric.Criteria,
				PassThreshold: o.Rubric.PassThreshold,
			},
		})
	}

	for _, o := range doc.Objects {
		content, err := decodeYAMLContent(skillgraph.ALOType(o.Type), o.Content)
		if err != nil {
			return nil, fmt.Errorf("course %s: alo %s: %w", courseID, o.ID, err)
		}
		def.Objects = append(def.Objects, skillgraph.ALO{
			ID:         o.ID,
			LOID:       o.LOID,
			Type:       skillgraph.ALOType(o.Type),
			Content:    content,
			EstTimeSec: o.EstTimeSec,
			Difficulty: skillgraph.Difficulty(o.Difficulty),
			Tags:       o.Tags,
		})
	}

	for _, e := range doc.Prerequisites {
		def.Prerequisites = append(def.Prerequisites, skillgraph.Prerequisite{
			KCID:       e.KCID,
			PrereqKCID: e.PrereqKCID,
		})
	}

	return def, nil
}

// decodeYAMLContent routes the free-form content mapping through the JSON
// content decoder so the YAML and Postgres sources share one schema.
func decodeYAMLContent(t skillgraph.ALOType, raw map[string]any) (skillgraph.Content, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	return skillgraph.DecodeContent(t, data)
}
