package httpapi

import (
	"testing"
)

// Contract checks pin the boundary response shapes that the wizard UI and
// scripts depend on.

func TestContractProfilesShape(t *testing.T) {
	env := newTestEnv(t, Config{APIKey: testAPIKey})
	out := decode(t, getWithHeaders(t, env.handler, "/api/profiles", authed()))
	for _, key := range []string{"profiles", "defaultProfileId", "activeProfile"} {
		if _, ok := out[key]; !ok {
			t.Fatalf("profiles response missing %q: %v", key, out)
		}
	}
	profiles := out["profiles"].([]any)
	if len(profiles) == 0 {
		t.Fatal("no profiles listed")
	}
	first := profiles[0].(map[string]any)
	for _, key := range []string{"id", "name", "version", "requiredIntakeFields", "requiredGeneratedDrafts", "sectionMappings"} {
		if _, ok := first[key]; !ok {
			t.Fatalf("profile missing %q: %v", key, first)
		}
	}
}

func TestContractEvaluateShape(t *testing.T) {
	env := newTestEnv(t, Config{APIKey: testAPIKey})
	out := decode(t, postJSON(t, env.handler, "/api/evaluate", map[string]any{
		"intake": map[string]any{"includesMinors": "yes"},
	}, authed()))

	eval := out["evaluation"].(map[string]any)
	flags := eval["flags"].([]any)
	if len(flags) == 0 {
		t.Fatal("no flags for a minors intake")
	}
	flag := flags[0].(map[string]any)
	for _, key := range []string{"id", "severity", "title", "rationale", "actions"} {
		if _, ok := flag[key]; !ok {
			t.Fatalf("flag missing %q: %v", key, flag)
		}
	}
	summary := eval["summary"].(map[string]any)
	for _, key := range []string{"flagCounts", "likelyHumanSubjectsResearch", "likelyMinimalRisk", "nextSteps"} {
		if _, ok := summary[key]; !ok {
			t.Fatalf("summary missing %q: %v", key, summary)
		}
	}
}

func TestContractImportResultShape(t *testing.T) {
	env := newTestEnv(t, Config{APIKey: testAPIKey})
	out := decode(t, postJSON(t, env.handler, "/api/import-profile", map[string]any{
		"organizationName": "Acme University",
	}, authed()))

	res := out["importResult"].(map[string]any)
	for _, key := range []string{"confidence", "confidenceBand", "signals", "sources", "documentLinks", "profileDraft", "stats", "warnings", "notes"} {
		if _, ok := res[key]; !ok {
			t.Fatalf("import result missing %q", key)
		}
	}
	stats := res["stats"].(map[string]any)
	for _, key := range []string{"candidateSourceCount", "fetchedSourceCount", "failedSourceCount", "signalCount"} {
		if _, ok := stats[key]; !ok {
			t.Fatalf("stats missing %q: %v", key, stats)
		}
	}
	conf := res["confidence"].(float64)
	if conf < 0 || conf > 1 {
		t.Fatalf("confidence out of range: %f", conf)
	}
}

func TestContractReadinessShape(t *testing.T) {
	env := newTestEnv(t, Config{APIKey: testAPIKey})
	out := decode(t, postJSON(t, env.handler, "/api/readiness", map[string]any{
		"intake": map[string]any{"studyTitle": "Shape Check"},
	}, authed()))

	readinessObj := out["readiness"].(map[string]any)
	for _, key := range []string{"summary", "blockingItems", "missingFields", "missingDrafts", "missingManualAttachments", "placeholderFindings", "warningItems", "nextSteps", "sectionChecklist"} {
		if _, ok := readinessObj[key]; !ok {
			t.Fatalf("readiness missing %q", key)
		}
	}
	summary := readinessObj["summary"].(map[string]any)
	for _, key := range []string{"readyForAdvisorReview", "readyForIrbDraftPacket", "blockingCount", "warningCount", "missingFieldCount", "missingDraftCount", "placeholderIssueCount"} {
		if _, ok := summary[key]; !ok {
			t.Fatalf("summary missing %q: %v", key, summary)
		}
	}
	checklist := readinessObj["sectionChecklist"].([]any)
	if len(checklist) == 0 {
		t.Fatal("empty section checklist")
	}
	section := checklist[0].(map[string]any)
	for _, key := range []string{"sectionId", "sectionLabel", "sourceType", "sourceKey", "status"} {
		if _, ok := section[key]; !ok {
			t.Fatalf("section missing %q: %v", key, section)
		}
	}
}
