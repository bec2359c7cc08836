package schema

import "sort"

// Drift result types.
const (
	DriftInitial = "initial"
	DriftNone    = "none"
	DriftChanged = "drift"
)

type TypeChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Result describes the structural difference between the previous observed
// schema and the current one. Additions alone are never breaking; removals
// and type changes are.
type Result struct {
	Type        string                `json:"type"`
	Breaking    bool                  `json:"breaking"`
	Added       []string              `json:"added,omitempty"`
	Removed     []string              `json:"removed,omitempty"`
	ChangedType map[string]TypeChange `json:"changed_type,omitempty"`
	Details     string                `json:"details,omitempty"`
}

// Diff compares against the previous observation, or reports "initial" when
// there is no baseline yet.
func Diff(previous *Observation, current Observation) Result {
	if previous == nil || len(previous.Columns) == 0 {
		return Result{Type: DriftInitial, Breaking: false, Details: "first schema observed"}
	}

	prev := make(map[string]string, len(previous.Columns))
	for _, c := range previous.Columns {
		prev[c.Name] = c.LogicalType
	}
	cur := make(map[string]string, len(current.Columns))
	for _, c := range current.Columns {
		cur[c.Name] = c.LogicalType
	}

	var added, removed []string
	changed := map[string]TypeChange{}

	for name := range cur {
		if _, ok := prev[name]; !ok {
			added = append(added, name)
		}
	}
	for name, prevType := range prev {
		curType, ok := cur[name]
		if !ok {
			removed = append(removed, name)
			continue
		}
		if curType != prevType {
			changed[name] = TypeChange{From: prevType, To: curType}
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	res := Result{
		Type:     DriftNone,
		Breaking: len(removed) > 0 || len(changed) > 0,
		Added:    added,
		Removed:  removed,
	}
	if len(changed) > 0 {
		res.ChangedType = changed
	}
	if len(added) > 0 || len(removed) > 0 || len(changed) > 0 {
		res.Type = DriftChanged
	}
	return res
}
