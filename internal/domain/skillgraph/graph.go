package skillgraph

import (
	"fmt"
	"sort"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SKILL GRAPH
// Скомпилированный каталог одного курса: KC + рёбра предпосылок + LO + ALO.
// Загружается один раз на курс и далее используется только для чтения,
// поэтому безопасен для конкурентного доступа из любого числа сессий.
// ══════════════════════════════════════════════════════════════════════════════

// SkillGraph - неизменяемый граф навыков одного курса.
type SkillGraph struct {
	// CourseID - идентификатор курса.
	CourseID string

	kcs     map[string]*KnowledgeComponent
	los     map[string]*LearningObjective
	alos    map[string]*ALO
	prereqs map[string][]string // kcID -> prerequisite kcIDs

	// topoOrder - KC в топологическом порядке (предпосылки раньше зависимых).
	topoOrder []string

	// alosByKC - ALO каждого KC, отсортированные по (difficulty, id).
	alosByKC map[string][]*ALO
}

// CourseDefinition - сырой вход компиляции графа, то, что отдаёт
// контентный пайплайн (каталог в Postgres или YAML-файл курса).
type CourseDefinition struct {
	CourseID      string
	Components    []KnowledgeComponent
	Objectives    []LearningObjective
	Objects       []ALO
	Prerequisites []Prerequisite
}

// Build компилирует определение курса в неизменяемый SkillGraph.
// Загрузка атомарна: любая ошибка валидации означает, что курс не
// обслуживается вовсе - частично собранный граф никогда не возвращается.
//
// Ошибки:
//   - shared.ErrGraphCycle, если рёбра предпосылок образуют цикл;
//   - shared.ErrDanglingReference, если ребро, LO или ALO ссылаются на
//     неизвестную сущность.
func Build(def CourseDefinition) (*SkillGraph, error) {
	if def.CourseID == "" {
		return nil, shared.NewDomainError("skillgraph", "Build", shared.ErrInvalidInput, "course id is required")
	}

	g := &SkillGraph{
		CourseID: def.CourseID,
		kcs:      make(map[string]*KnowledgeComponent, len(def.Components)),
		los:      make(map[string]*LearningObjective, len(def.Objectives)),
		alos:     make(map[string]*ALO, len(def.Objects)),
		prereqs:  make(map[string][]string),
		alosByKC: make(map[string][]*ALO),
	}

	// KC: валидация и индексация.
	for i := range def.Components {
		kc := def.Components[i]
		if err := kc.Validate(); err != nil {
			return nil, shared.WrapError("skillgraph", "Build", shared.ErrValidation, "invalid knowledge component", err)
		}
		if _, ok := g.kcs[kc.ID]; ok {
			return nil, shared.NewDomainError("skillgraph", "Build", shared.ErrAlreadyExists,
				fmt.Sprintf("duplicate knowledge component %s", kc.ID))
		}
		g.kcs[kc.ID] = &kc
	}

	// LO: каждая цель принадлежит ровно одному существующему KC.
	for i := range def.Objectives {
		lo := def.Objectives[i]
		if err := lo.Validate(); err != nil {
			return nil, shared.WrapError("skillgraph", "Build", shared.ErrValidation, "invalid learning objective", err)
		}
		if _, ok := g.kcs[lo.KCID]; !ok {
			return nil, shared.NewDomainError("skillgraph", "Build", shared.ErrDanglingReference,
				fmt.Sprintf("learning objective %s references unknown knowledge component %s", lo.ID, lo.KCID))
		}
		if _, ok := g.los[lo.ID]; ok {
			return nil, shared.NewDomainError("skillgraph", "Build", shared.ErrAlreadyExists,
				fmt.Sprintf("duplicate learning objective %s", lo.ID))
		}
		g.los[lo.ID] = &lo
	}

	// ALO: каждый объект принадлежит существующей LO.
	for i := range def.Objects {
		alo := def.Objects[i]
		if err := alo.Validate(); err != nil {
			return nil, shared.WrapError("skillgraph", "Build", shared.ErrValidation, "invalid learning object", err)
		}
		lo, ok := g.los[alo.LOID]
		if !ok {
			return nil, shared.NewDomainError("skillgraph", "Build", shared.ErrDanglingReference,
				fmt.Sprintf("learning object %s references unknown learning objective %s", alo.ID, alo.LOID))
		}
		if _, ok := g.alos[alo.ID]; ok {
			return nil, shared.NewDomainError("skillgraph", "Build", shared.ErrAlreadyExists,
				fmt.Sprintf("duplicate learning object %s", alo.ID))
		}
		g.alos[alo.ID] = &alo
		g.alosByKC[lo.KCID] = append(g.alosByKC[lo.KCID], &alo)
	}

	// Рёбра: оба конца должны существовать.
	seen := make(map[Prerequisite]bool, len(def.Prerequisites))
	for _, edge := range def.Prerequisites {
		if err := edge.Validate(); err != nil {
			return nil, shared.WrapError("skillgraph", "Build", shared.ErrValidation, "invalid prerequisite edge", err)
		}
		if _, ok := g.kcs[edge.KCID]; !ok {
			return nil, shared.NewDomainError("skillgraph", "Build", shared.ErrDanglingReference,
				fmt.Sprintf("prerequisite edge references unknown knowledge component %s", edge.KCID))
		}
		if _, ok := g.kcs[edge.PrereqKCID]; !ok {
			return nil, shared.NewDomainError("skillgraph", "Build", shared.ErrDanglingReference,
				fmt.Sprintf("prerequisite edge references unknown knowledge component %s", edge.PrereqKCID))
		}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		g.prereqs[edge.KCID] = append(g.prereqs[edge.KCID], edge.PrereqKCID)
	}

	// Топологическая сортировка (алгоритм Кана). Заодно детектирует циклы.
	order, err := g.topologicalOrder()
	if err != nil {
		return nil, err
	}
	g.topoOrder = order

	// Детерминированный порядок ALO внутри KC: сначала лёгкие.
	for kcID := range g.alosByKC {
		list := g.alosByKC[kcID]
		sort.Slice(list, func(i, j int) bool {
			if list[i].Difficulty != list[j].Difficulty {
				return list[i].Difficulty < list[j].Difficulty
			}
			return list[i].ID < list[j].ID
		})
	}

	return g, nil
}

// topologicalOrder строит порядок KC по Кану: предпосылки раньше зависимых.
// Возвращает shared.ErrGraphCycle, если обход не покрыл все вершины.
func (g *SkillGraph) topologicalOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.kcs))
	for id := range g.kcs {
		indegree[id] = 0
	}
	for kcID, reqs := range g.prereqs {
		indegree[kcID] += len(reqs)
	}

	// Детеминированность: стартовая очередь отсортирована по slug.
	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	g.sortBySlug(queue)

	// dependents - обратный индекс: prereq -> зависимые KC.
	dependents := make(map[string][]string)
	for kcID, reqs := range g.prereqs {
		for _, req := range reqs {
			dependents[req] = append(dependents[req], kcID)
		}
	}

	order := make([]string, 0, len(g.kcs))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		var released []string
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		g.sortBySlug(released)
		queue = append(queue, released...)
	}

	if len(order) != len(g.kcs) {
		return nil, shared.NewDomainError("skillgraph", "Build", shared.ErrGraphCycle,
			fmt.Sprintf("prerequisite cycle detected: %d of %d components unreachable",
				len(g.kcs)-len(order), len(g.kcs)))
	}

	return order, nil
}

func (g *SkillGraph) sortBySlug(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		return g.kcs[ids[i]].Slug < g.kcs[ids[j]].Slug
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalog Queries (pure reads)
// ─────────────────────────────────────────────────────────────────────────────

// GetKC возвращает KC по идентификатору.
// Возвращает shared.ErrKCNotFound, если KC неизвестен.
func (g *SkillGraph) GetKC(kcID string) (*KnowledgeComponent, error) {
	kc, ok := g.kcs[kcID]
	if !ok {
		return nil, shared.ErrKCNotFound
	}
	return kc, nil
}

// GetLO возвращает цель обучения по идентификатору.
// Возвращает shared.ErrLONotFound, если LO неизвестна.
func (g *SkillGraph) GetLO(loID string) (*LearningObjective, error) {
	lo, ok := g.los[loID]
	if !ok {
		return nil, shared.ErrLONotFound
	}
	return lo, nil
}

// GetALO возвращает учебный объект по идентификатору.
// Возвращает shared.ErrALONotFound, если ALO неизвестен.
func (g *SkillGraph) GetALO(aloID string) (*ALO, error) {
	alo, ok := g.alos[aloID]
	if !ok {
		return nil, shared.ErrALONotFound
	}
	return alo, nil
}

// OwningKC возвращает KC, которому принадлежит ALO (через его LO).
func (g *SkillGraph) OwningKC(aloID string) (*KnowledgeComponent, error) {
	alo, err := g.GetALO(aloID)
	if err != nil {
		return nil, err
	}
	lo, err := g.GetLO(alo.LOID)
	if err != nil {
		return nil, err
	}
	return g.GetKC(lo.KCID)
}

// Prerequisites возвращает прямые предпосылки KC.
func (g *SkillGraph) Prerequisites(kcID string) []string {
	return g.prereqs[kcID]
}

// TopoOrder возвращает KC в топологическом порядке.
func (g *SkillGraph) TopoOrder() []string {
	return g.topoOrder
}

// ALOsForKC возвращает ALO компонента, отсортированные по возрастанию сложности.
func (g *SkillGraph) ALOsForKC(kcID string) []*ALO {
	return g.alosByKC[kcID]
}

// ComponentCount возвращает количество KC в графе.
func (g *SkillGraph) ComponentCount() int {
	return len(g.kcs)
}

// ObjectCount возвращает количество ALO в графе.
func (g *SkillGraph) ObjectCount() int {
	return len(g.alos)
}

// PrerequisitesSatisfied возвращает true, если каждая предпосылка KC освоена:
// theta >= threshold. KC без предпосылок всегда удовлетворён.
// Отсутствие оценки в mastery трактуется как theta = 0.
func (g *SkillGraph) PrerequisitesSatisfied(mastery map[string]float64, kcID string, threshold float64) bool {
	for _, req := range g.prereqs[kcID] {
		if mastery[req] < threshold {
			return false
		}
	}
	return true
}
