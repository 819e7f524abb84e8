package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	names := []string{
		FeatureWeakPassRemediation,
		FeatureEvidenceGrading,
		FeatureResumableSessions,
		FeatureCourseCache,
		FeatureReviewDigest,
	}
	for _, name := range names {
		assert.True(t, ff.IsEnabledGlobally(name), name)
		assert.True(t, ff.IsEnabled(name, FeatureContext{UserID: "u1"}), name)
	}

	assert.False(t, ff.IsEnabled("engine.unknown_feature", FeatureContext{UserID: "u1"}))
	assert.False(t, ff.IsEnabledGlobally("engine.unknown_feature"))
}

func TestFeatureFlags_EnvDisable(t *testing.T) {
	t.Setenv("FEATURE_JOBS_REVIEW_DIGEST", "false")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureReviewDigest, FeatureContext{UserID: "u1"}))
	assert.False(t, ff.IsEnabledGlobally(FeatureReviewDigest))

	// Other flags keep their defaults.
	assert.True(t, ff.IsEnabledGlobally(FeatureEvidenceGrading))
}

func TestFeatureFlags_EnvRollout(t *testing.T) {
	t.Setenv("FEATURE_ENGINE_EVIDENCE_GRADING_ROLLOUT", "0")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureEvidenceGrading, FeatureContext{UserID: "u1"}))
	assert.False(t, ff.IsEnabledGlobally(FeatureEvidenceGrading))
}

func TestFeatureFlags_EnvRolloutIgnoresInvalidValues(t *testing.T) {
	t.Setenv("FEATURE_ENGINE_EVIDENCE_GRADING_ROLLOUT", "150")
	t.Setenv("FEATURE_JOBS_REVIEW_DIGEST", "not-a-bool")

	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabledGlobally(FeatureEvidenceGrading))
	assert.True(t, ff.IsEnabledGlobally(FeatureReviewDigest))
}

func TestFeatureFlags_PartialRollout(t *testing.T) {
	t.Setenv("FEATURE_ENGINE_RESUMABLE_SESSIONS_ROLLOUT", "50")

	ff := LoadFeatureFlags()

	// Partial rollouts count as globally disabled.
	assert.False(t, ff.IsEnabledGlobally(FeatureResumableSessions))

	// Bucketing is deterministic per user.
	users := []string{"u-a", "u-b", "u-c", "u-d", "u-e", "u-f", "u-g", "u-h"}
	first := make(map[string]bool, len(users))
	for _, u := range users {
		first[u] = ff.IsEnabled(FeatureResumableSessions, FeatureContext{UserID: u})
	}
	for _, u := range users {
		assert.Equal(t, first[u], ff.IsEnabled(FeatureResumableSessions, FeatureContext{UserID: u}), u)
	}
}

func TestFeatureFlags_UserOverride(t *testing.T) {
	ff := LoadFeatureFlags()

	ff.SetOverride("u1", FeatureWeakPassRemediation, false)

	assert.False(t, ff.IsEnabled(FeatureWeakPassRemediation, FeatureContext{UserID: "u1"}))
	assert.True(t, ff.IsEnabled(FeatureWeakPassRemediation, FeatureContext{UserID: "u2"}),
		"override applies to one user only")

	ff.ClearOverrides("u1")
	assert.True(t, ff.IsEnabled(FeatureWeakPassRemediation, FeatureContext{UserID: "u1"}))
}

func TestFeatureFlags_OverrideCanForceOn(t *testing.T) {
	t.Setenv("FEATURE_CACHE_COURSE_DEFINITIONS", "false")

	ff := LoadFeatureFlags()
	require.False(t, ff.IsEnabled(FeatureCourseCache, FeatureContext{UserID: "u1"}))

	ff.SetOverride("u1", FeatureCourseCache, true)
	assert.True(t, ff.IsEnabled(FeatureCourseCache, FeatureContext{UserID: "u1"}))
}

func TestFeatureFlags_ListReturnsCopies(t *testing.T) {
	ff := LoadFeatureFlags()

	features := ff.List()
	require.Len(t, features, 5)
	for i := range features {
		features[i].Enabled = false
	}

	assert.True(t, ff.IsEnabledGlobally(FeatureWeakPassRemediation))
}
