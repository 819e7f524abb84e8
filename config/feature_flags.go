package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles for the engine. Supports gradual
// rollout by user hash and per-user overrides for debugging.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[string]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Users are assigned based on hash of their ID
	RolloutPercent int
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	UserID string
}

// Predefined feature flag names.
const (
	// FeatureWeakPassRemediation scores a correct answer with heavy hint
	// use or long latency as a review lapse.
	FeatureWeakPassRemediation = "engine.weak_pass_remediation"

	// FeatureEvidenceGrading accepts submit_evidence messages.
	FeatureEvidenceGrading = "engine.evidence_grading"

	// FeatureResumableSessions lets a user resume a live session by id
	// within the idle TTL.
	FeatureResumableSessions = "engine.resumable_sessions"

	// FeatureCourseCache caches compiled course definitions in Redis.
	FeatureCourseCache = "cache.course_definitions"

	// FeatureReviewDigest runs the daily due-review digest job.
	FeatureReviewDigest = "jobs.review_digest"
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	defaults := []*Feature{
		{
			Name:           FeatureWeakPassRemediation,
			Description:    "Treat hinted or slow correct answers as review lapses",
			Enabled:        true,
			RolloutPercent: 100,
		},
		{
			Name:           FeatureEvidenceGrading,
			Description:    "Accept submit_evidence messages for exercise and project objects",
			Enabled:        true,
			RolloutPercent: 100,
		},
		{
			Name:           FeatureResumableSessions,
			Description:    "Resume a live session by id within the idle TTL",
			Enabled:        true,
			RolloutPercent: 100,
		},
		{
			Name:           FeatureCourseCache,
			Description:    "Cache compiled course definitions in Redis",
			Enabled:        true,
			RolloutPercent: 100,
		},
		{
			Name:           FeatureReviewDigest,
			Description:    "Run the daily due-review digest job",
			Enabled:        true,
			RolloutPercent: 100,
		},
	}

	for _, f := range defaults {
		ff.features[f.Name] = f
	}
}

// loadFromEnvironment applies env overrides.
// FEATURE_ENGINE_WEAK_PASS_REMEDIATION=false disables a flag;
// FEATURE_ENGINE_WEAK_PASS_REMEDIATION_ROLLOUT=25 sets its rollout.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, f := range ff.features {
		envKey := "FEATURE_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(name))

		if val := os.Getenv(envKey); val != "" {
			if enabled, err := strconv.ParseBool(val); err == nil {
				f.Enabled = enabled
			}
		}

		if val := os.Getenv(envKey + "_ROLLOUT"); val != "" {
			if pct, err := strconv.Atoi(val); err == nil && pct >= 0 && pct <= 100 {
				f.RolloutPercent = pct
			}
		}
	}
}

// IsEnabled checks whether a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(name string, fctx FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// User override wins
	if overrides, ok := ff.userOverrides[fctx.UserID]; ok {
		if enabled, ok := overrides[name]; ok {
			return enabled
		}
	}

	f, ok := ff.features[name]
	if !ok || !f.Enabled {
		return false
	}

	if f.RolloutPercent >= 100 {
		return true
	}
	if f.RolloutPercent <= 0 {
		return false
	}

	return userBucket(fctx.UserID, name) < f.RolloutPercent
}

// IsEnabledGlobally checks a feature without user context. Partial
// rollouts count as disabled.
func (ff *FeatureFlags) IsEnabledGlobally(name string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[name]
	return ok && f.Enabled && f.RolloutPercent >= 100
}

// SetOverride forces a feature on or off for one user.
func (ff *FeatureFlags) SetOverride(userID, name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.userOverrides[userID] == nil {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][name] = enabled
}

// ClearOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// List returns a copy of all features.
func (ff *FeatureFlags) List() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		result = append(result, *f)
	}
	return result
}

// userBucket maps (userID, feature) to a stable bucket in [0, 100).
// Including the feature name decorrelates rollouts across features.
func userBucket(userID, feature string) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte(feature))
	return int(h.Sum32() % 100)
}
