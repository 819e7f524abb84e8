// Package skillgraph содержит доменную модель каталога курса: Knowledge
// Components (KC), Learning Objectives (LO) и Adaptive Learning Objects (ALO).
// Это ядро контента - здесь нет внешних зависимостей.
package skillgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Slug представляет уникальный человекочитаемый идентификатор KC.
type Slug string

// IsValid проверяет корректность slug.
func (s Slug) IsValid() bool {
	str := string(s)
	return len(str) >= 1 && len(str) <= 200 && !strings.ContainsAny(str, " \t\n\r")
}

// String возвращает строковое представление slug.
func (s Slug) String() string {
	return string(s)
}

// Difficulty представляет порядковую сложность (1 - самый лёгкий, 5 - самый сложный).
type Difficulty int

// Границы шкалы сложности.
const (
	MinDifficulty Difficulty = 1
	MaxDifficulty Difficulty = 5
)

// IsValid проверяет, что сложность в допустимом диапазоне.
func (d Difficulty) IsValid() bool {
	return d >= MinDifficulty && d <= MaxDifficulty
}

// ══════════════════════════════════════════════════════════════════════════════
// KNOWLEDGE COMPONENT
// ══════════════════════════════════════════════════════════════════════════════

// KnowledgeComponent - атомарная единица знания, узел графа предпосылок.
// После публикации курса KC неизменяем.
type KnowledgeComponent struct {
	// ID - уникальный идентификатор (UUID в строковом формате).
	ID string

	// Slug - человекочитаемый идентификатор, уникален в рамках курса.
	Slug Slug

	// Title - отображаемое название.
	Title string

	// Description - необязательное описание.
	Description string

	// Tags - произвольные метки для фильтрации.
	Tags []string

	// CreatedAt - время создания записи.
	CreatedAt time.Time
}

// Validate проверяет корректность KC.
func (kc *KnowledgeComponent) Validate() error {
	if kc.ID == "" {
		return errors.New("knowledge component id is required")
	}
	if !kc.Slug.IsValid() {
		return fmt.Errorf("knowledge component %s: invalid slug %q", kc.ID, kc.Slug)
	}
	if strings.TrimSpace(kc.Title) == "" {
		return fmt.Errorf("knowledge component %s: title is required", kc.ID)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING OBJECTIVE
// ══════════════════════════════════════════════════════════════════════════════

// LearningObjective - конкретная проверяемая цель обучения внутри одного KC.
type LearningObjective struct {
	// ID - уникальный идентификатор.
	ID string

	// KCID - идентификатор владеющего KC. LO принадлежит ровно одному KC.
	KCID string

	// Verb - глагол цели обучения (например, "explain", "apply", "analyze").
	Verb string

	// Difficulty - порядковая сложность цели.
	Difficulty Difficulty

	// Rubric - критерии оценивания.
	Rubric Rubric
}

// Rubric описывает критерии оценивания для LO.
type Rubric struct {
	// Criteria - список критериев, которым должна удовлетворять работа.
	Criteria []string `json:"criteria"`

	// PassThreshold - доля критериев, необходимая для зачёта (0.0 - 1.0).
	PassThreshold float64 `json:"pass_threshold"`
}

// Validate проверяет корректность LO.
func (lo *LearningObjective) Validate() error {
	if lo.ID == "" {
		return errors.New("learning objective id is required")
	}
	if lo.KCID == "" {
		return fmt.Errorf("learning objective %s: kc_id is required", lo.ID)
	}
	if strings.TrimSpace(lo.Verb) == "" {
		return fmt.Errorf("learning objective %s: verb is required", lo.ID)
	}
	if !lo.Difficulty.IsValid() {
		return fmt.Errorf("learning objective %s: difficulty %d out of range [%d,%d]",
			lo.ID, lo.Difficulty, MinDifficulty, MaxDifficulty)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ALO TYPES (tagged union)
// ══════════════════════════════════════════════════════════════════════════════

// ALOType определяет тип учебного объекта.
type ALOType string

const (
	// ALOTypeExplain - объяснение концепции (markdown).
	ALOTypeExplain ALOType = "explain"
	// ALOTypeExample - разобранный пример (markdown + код).
	ALOTypeExample ALOType = "example"
	// ALOTypeExercise - упражнение с проверками.
	ALOTypeExercise ALOType = "exercise"
	// ALOTypeQuiz - вопрос с вариантами ответа.
	ALOTypeQuiz ALOType = "quiz"
	// ALOTypeProject - проект с приёмочными тестами.
	ALOTypeProject ALOType = "project"
)

// IsValid проверяет, что тип ALO корректен.
func (t ALOType) IsValid() bool {
	switch t {
	case ALOTypeExplain, ALOTypeExample, ALOTypeExercise, ALOTypeQuiz, ALOTypeProject:
		return true
	default:
		return false
	}
}

// AcceptsEvidence возвращает true, если для этого типа ALO принимаются
// артефакты через submit_evidence.
func (t ALOType) AcceptsEvidence() bool {
	return t == ALOTypeExercise || t == ALOTypeProject
}

// Content - общий интерфейс типизированного содержимого ALO.
// Каждый тип ALO несёт свою собственную схему payload.
type Content interface {
	// ContentType возвращает тип ALO, которому принадлежит payload.
	ContentType() ALOType
}

// ExplainContent - содержимое для ALO типа "explain".
type ExplainContent struct {
	Markdown  string   `json:"markdown"`
	AssetURLs []string `json:"asset_urls,omitempty"`
}

// ContentType реализует интерфейс Content.
func (ExplainContent) ContentType() ALOType { return ALOTypeExplain }

// ExampleContent - содержимое для ALO типа "example".
type ExampleContent struct {
	Markdown string `json:"markdown"`
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
}

// ContentType реализует интерфейс Content.
func (ExampleContent) ContentType() ALOType { return ALOTypeExample }

// ExerciseContent - содержимое для ALO типа "exercise".
type ExerciseContent struct {
	Prompt      string   `json:"prompt"`
	StarterCode string   `json:"starter_code,omitempty"`
	Language    string   `json:"language,omitempty"`
	Hints       []string `json:"hints,omitempty"`
}

// ContentType реализует интерфейс Content.
func (ExerciseContent) ContentType() ALOType { return ALOTypeExercise }

// QuizContent - содержимое для ALO типа "quiz".
type QuizContent struct {
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation,omitempty"`
}

// ContentType реализует интерфейс Content.
func (QuizContent) ContentType() ALOType { return ALOTypeQuiz }

// ProjectContent - содержимое для ALO типа "project".
type ProjectContent struct {
	Brief           string   `json:"brief"`
	AcceptanceTests []string `json:"acceptance_tests"`
	Resources       []string `json:"resources,omitempty"`
}

// ContentType реализует интерфейс Content.
func (ProjectContent) ContentType() ALOType { return ALOTypeProject }

// DecodeContent декодирует payload содержимого по дискриминатору типа.
func DecodeContent(t ALOType, raw json.RawMessage) (Content, error) {
	var (
		c   Content
		err error
	)
	switch t {
	case ALOTypeExplain:
		var v ExplainContent
		err = json.Unmarshal(raw, &v)
		c = v
	case ALOTypeExample:
		var v ExampleContent
		err = json.Unmarshal(raw, &v)
		c = v
	case ALOTypeExercise:
		var v ExerciseContent
		err = json.Unmarshal(raw, &v)
		c = v
	case ALOTypeQuiz:
		var v QuizContent
		err = json.Unmarshal(raw, &v)
		c = v
	case ALOTypeProject:
		var v ProjectContent
		err = json.Unmarshal(raw, &v)
		c = v
	default:
		return nil, fmt.Errorf("unknown alo type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s content: %w", t, err)
	}
	return c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ALO
// ══════════════════════════════════════════════════════════════════════════════

// ALO - Adaptive Learning Object, минимальная доставляемая единица контента.
// Запись каталога, только для чтения.
type ALO struct {
	// ID - уникальный идентификатор.
	ID string

	// LOID - идентификатор владеющей цели обучения.
	LOID string

	// Type - тип учебного объекта (дискриминатор содержимого).
	Type ALOType

	// Content - типизированное содержимое, форма зависит от Type.
	Content Content

	// EstTimeSec - оценка времени выполнения в секундах.
	EstTimeSec int

	// Difficulty - порядковая сложность объекта.
	Difficulty Difficulty

	// Tags - произвольные метки.
	Tags []string
}

// Validate проверяет корректность ALO.
func (a *ALO) Validate() error {
	if a.ID == "" {
		return errors.New("alo id is required")
	}
	if a.LOID == "" {
		return fmt.Errorf("alo %s: lo_id is required", a.ID)
	}
	if !a.Type.IsValid() {
		return fmt.Errorf("alo %s: unknown type %q", a.ID, a.Type)
	}
	if a.Content == nil {
		return fmt.Errorf("alo %s: content is required", a.ID)
	}
	if a.Content.ContentType() != a.Type {
		return fmt.Errorf("alo %s: content shape %q does not match type %q",
			a.ID, a.Content.ContentType(), a.Type)
	}
	if a.EstTimeSec <= 0 {
		return fmt.Errorf("alo %s: est_time_sec must be positive", a.ID)
	}
	if !a.Difficulty.IsValid() {
		return fmt.Errorf("alo %s: difficulty %d out of range [%d,%d]",
			a.ID, a.Difficulty, MinDifficulty, MaxDifficulty)
	}
	return nil
}

// aloJSON - wire-представление ALO с raw payload содержимого.
type aloJSON struct {
	ID         string          `json:"id"`
	LOID       string          `json:"lo_id"`
	Type       ALOType         `json:"type"`
	Content    json.RawMessage `json:"content"`
	EstTimeSec int             `json:"est_time_sec"`
	Difficulty Difficulty      `json:"difficulty"`
	Tags       []string        `json:"tags,omitempty"`
}

// MarshalJSON сериализует ALO вместе с типизированным содержимым.
func (a ALO) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(a.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal %s content: %w", a.Type, err)
	}
	return json.Marshal(aloJSON{
		ID:         a.ID,
		LOID:       a.LOID,
		Type:       a.Type,
		Content:    raw,
		EstTimeSec: a.EstTimeSec,
		Difficulty: a.Difficulty,
		Tags:       a.Tags,
	})
}

// UnmarshalJSON десериализует ALO, выбирая схему содержимого по полю type.
func (a *ALO) UnmarshalJSON(data []byte) error {
	var w aloJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	content, err := DecodeContent(w.Type, w.Content)
	if err != nil {
		return err
	}
	a.ID = w.ID
	a.LOID = w.LOID
	a.Type = w.Type
	a.Content = content
	a.EstTimeSec = w.EstTimeSec
	a.Difficulty = w.Difficulty
	a.Tags = w.Tags
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PREREQUISITE EDGE
// ══════════════════════════════════════════════════════════════════════════════

// Prerequisite - направленное ребро графа: KCID требует PrereqKCID.
type Prerequisite struct {
	// KCID - зависимый KC.
	KCID string

	// PrereqKCID - KC, который должен быть освоен раньше.
	PrereqKCID string
}

// Validate проверяет корректность ребра.
func (p Prerequisite) Validate() error {
	if p.KCID == "" || p.PrereqKCID == "" {
		return errors.New("prerequisite edge endpoints are required")
	}
	if p.KCID == p.PrereqKCID {
		return fmt.Errorf("knowledge component %s cannot require itself", p.KCID)
	}
	return nil
}
