package relevance

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentbus/agentbus/internal/agent"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "criteria.lua")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func validatorWithScript(t *testing.T, script string) *Validator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CriteriaScripts = []string{writeScript(t, script)}
	return New(nil, &fakeContacts{contact: activeContact()}, Options{Config: &cfg})
}

func TestCriteriaScriptStringVerdict(t *testing.T) {
	v := validatorWithScript(t, `
function evaluate(action, contact)
  if action.kind == "send_email" then
    return "stale"
  end
  return "inconclusive"
end`)

	res := v.Validate(context.Background(), Request{Action: localAction(), ContactID: "c-1"})
	if res.IsRelevant {
		t.Error("script stale verdict must win")
	}
	if res.ConfidenceScore != 0.9 {
		// Scripts without a confidence inherit the rule-tier default.
		t.Errorf("confidence = %f, want 0.9", res.ConfidenceScore)
	}
}

func TestCriteriaScriptTableVerdict(t *testing.T) {
	v := validatorWithScript(t, `
function evaluate(action, contact)
  return { verdict = "relevant", reason = "promo window open", confidence = 0.7 }
end`)

	res := v.Validate(context.Background(), Request{Action: localAction(), ContactID: "c-1"})
	if !res.IsRelevant {
		t.Errorf("res = %+v", res)
	}
	if res.Reasoning != "promo window open" || res.ConfidenceScore != 0.7 {
		t.Errorf("res = %+v", res)
	}
}

func TestCriteriaScriptSeesContact(t *testing.T) {
	v := validatorWithScript(t, `
function evaluate(action, contact)
  if contact and contact.relationship_state == "engaged" then
    return { verdict = "relevant", reason = "still engaged" }
  end
  return "stale"
end`)

	res := v.Validate(context.Background(), Request{Action: localAction(), ContactID: "c-1"})
	if !res.IsRelevant || res.Reasoning != "still engaged" {
		t.Errorf("res = %+v", res)
	}
}

func TestCriteriaScriptErrorsAreSkipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CriteriaScripts = []string{
		writeScript(t, `function evaluate(a, c) error("script bug") end`),
		filepath.Join(t.TempDir(), "missing.lua"),
	}
	v := New(nil, &fakeContacts{contact: activeContact()}, Options{Config: &cfg})

	// Broken scripts are logged and skipped; the pipeline falls through to
	// the context tier instead of failing the validation.
	res := v.Validate(context.Background(), Request{Action: localAction(), ContactID: "c-1"})
	if !res.IsRelevant {
		t.Errorf("res = %+v", res)
	}
}

func TestCriteriaScriptBadVerdict(t *testing.T) {
	_, err := runCriteriaScript(
		writeScript(t, `function evaluate(a, c) return "perhaps" end`),
		ptrAction(), nil)
	if err == nil || !strings.Contains(err.Error(), "unknown verdict") {
		t.Errorf("err = %v", err)
	}
}

func TestCriteriaScriptMissingEvaluate(t *testing.T) {
	_, err := runCriteriaScript(writeScript(t, `x = 1`), ptrAction(), nil)
	if err == nil || !strings.Contains(err.Error(), "must define global function evaluate") {
		t.Errorf("err = %v", err)
	}
}

func ptrAction() *agent.Action {
	a := localAction()
	return &a
}
