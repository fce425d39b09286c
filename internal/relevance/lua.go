package relevance

import (
	"fmt"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/agentbus/agentbus/internal/agent"
)

// runCriteriaScript runs the Lua script at scriptPath, calling the global
// evaluate(action, contact) function. The script must return either a verdict
// string ("relevant", "stale", "inconclusive") or a table with verdict,
// reason and optional confidence fields. Scripts let operators extend the
// rule tier without rebuilding the binary.
func runCriteriaScript(scriptPath string, action *agent.Action, contact *agent.ContactContext) (tierResult, error) {
	lState := lua.NewState()
	defer lState.Close()

	absPath, err := filepath.Abs(scriptPath)
	if err != nil {
		return tierResult{}, fmt.Errorf("script path: %w", err)
	}
	if err := lState.DoFile(absPath); err != nil {
		return tierResult{}, fmt.Errorf("load script: %w", err)
	}

	fn := lState.GetGlobal("evaluate")
	if fn.Type() != lua.LTFunction {
		return tierResult{}, fmt.Errorf("script must define global function evaluate(action, contact)")
	}

	lState.Push(fn)
	lState.Push(actionTable(lState, action))
	lState.Push(contactTable(lState, contact))
	if err := lState.PCall(2, 1, nil); err != nil {
		return tierResult{}, fmt.Errorf("evaluate(): %w", err)
	}

	ret := lState.Get(-1)
	lState.Pop(1)

	switch ret.Type() {
	case lua.LTString:
		return verdictFromString(ret.String(), "script verdict")
	case lua.LTTable:
		tbl := ret.(*lua.LTable)
		verdictStr := "inconclusive"
		reason := ""
		confidence := 0.0
		tbl.ForEach(func(k, val lua.LValue) {
			switch k.String() {
			case "verdict":
				verdictStr = val.String()
			case "reason":
				reason = val.String()
			case "confidence":
				if n, ok := val.(lua.LNumber); ok {
					confidence = float64(n)
				}
			}
		})
		if reason == "" {
			reason = "script verdict"
		}
		res, err := verdictFromString(verdictStr, reason)
		if err != nil {
			return tierResult{}, err
		}
		res.confidence = confidence
		return res, nil
	default:
		return tierResult{}, fmt.Errorf("evaluate() must return a string or table, got %s", ret.Type().String())
	}
}

func verdictFromString(s, reason string) (tierResult, error) {
	switch s {
	case "relevant":
		return tierResult{verdict: verdictRelevant, reason: reason}, nil
	case "stale":
		return tierResult{verdict: verdictStale, reason: reason}, nil
	case "inconclusive":
		return inconclusive(reason), nil
	default:
		return tierResult{}, fmt.Errorf("unknown verdict %q", s)
	}
}

func actionTable(lState *lua.LState, action *agent.Action) *lua.LTable {
	tbl := lState.NewTable()
	lState.SetField(tbl, "id", lua.LString(action.ID))
	lState.SetField(tbl, "kind", lua.LString(action.Kind))
	lState.SetField(tbl, "description", lua.LString(action.Description))
	lState.SetField(tbl, "priority", lua.LNumber(action.Priority))
	lState.SetField(tbl, "scope", lua.LString(string(action.Scope)))
	lState.SetField(tbl, "created_at", lua.LNumber(action.CreatedAt.Unix()))
	if !action.ExpiresAt.IsZero() {
		lState.SetField(tbl, "expires_at", lua.LNumber(action.ExpiresAt.Unix()))
	}
	params := lState.NewTable()
	for k, val := range action.Params {
		lState.SetField(params, k, lua.LString(val))
	}
	lState.SetField(tbl, "params", params)
	lState.SetField(tbl, "now", lua.LNumber(time.Now().Unix()))
	return tbl
}

func contactTable(lState *lua.LState, contact *agent.ContactContext) lua.LValue {
	if contact == nil {
		return lua.LNil
	}
	tbl := lState.NewTable()
	lState.SetField(tbl, "contact_id", lua.LString(contact.ContactID))
	lState.SetField(tbl, "relationship_state", lua.LString(contact.RelationshipState))
	lState.SetField(tbl, "lifecycle_stage", lua.LString(contact.LifecycleStage))
	lState.SetField(tbl, "sentiment", lua.LNumber(contact.Sentiment))
	if !contact.LastInteractionAt.IsZero() {
		lState.SetField(tbl, "last_interaction_at", lua.LNumber(contact.LastInteractionAt.Unix()))
	}
	return tbl
}
