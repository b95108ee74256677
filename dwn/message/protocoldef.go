package message

import (
	"encoding/json"
	"strings"
)

// MarshalJSON flattens $role/$actions alongside nested protocolPath children
// at the same object level, matching the wire shape a ProtocolsConfigure
// descriptor carries.
func (rs RuleSet) MarshalJSON() ([]byte, error) {
	out := map[string]json.RawMessage{}
	if rs.Role {
		b, err := json.Marshal(true)
		if err != nil {
			return nil, err
		}
		out["$role"] = b
	}
	if len(rs.Actions) > 0 {
		b, err := json.Marshal(rs.Actions)
		if err != nil {
			return nil, err
		}
		out["$actions"] = b
	}
	for path, child := range rs.Children {
		b, err := json.Marshal(child)
		if err != nil {
			return nil, err
		}
		out[path] = b
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the reserved $role/$actions keys from arbitrary
// protocolPath keys, routing the latter into Children.
func (rs *RuleSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["$role"]; ok {
		if err := json.Unmarshal(v, &rs.Role); err != nil {
			return err
		}
		delete(raw, "$role")
	}
	if v, ok := raw["$actions"]; ok {
		if err := json.Unmarshal(v, &rs.Actions); err != nil {
			return err
		}
		delete(raw, "$actions")
	}
	if len(raw) == 0 {
		return nil
	}
	rs.Children = make(map[string]RuleSet, len(raw))
	for path, v := range raw {
		var child RuleSet
		if err := json.Unmarshal(v, &child); err != nil {
			return err
		}
		rs.Children[path] = child
	}
	return nil
}

// RuleAt walks structure to the node addressed by protocolPath (a
// "/"-separated sequence of path segments, e.g. "post/comment"), returning
// (node, true) or (zero, false) if no such node exists.
func (pd *ProtocolDefinition) RuleAt(protocolPath string) (RuleSet, bool) {
	segments := SplitProtocolPath(protocolPath)
	nodes := pd.Structure
	var current RuleSet
	found := false
	for _, seg := range segments {
		rs, ok := nodes[seg]
		if !ok {
			return RuleSet{}, false
		}
		current = rs
		found = true
		nodes = rs.Children
	}
	return current, found
}

// SplitProtocolPath splits a "/"-separated protocolPath into its segments,
// dropping any empty leading/trailing segments from a leading/trailing "/".
func SplitProtocolPath(protocolPath string) []string {
	trimmed := strings.Trim(protocolPath, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// AncestorPaths returns every proper ancestor path of protocolPath, from
// immediate parent down to the root segment, e.g. "post/comment/reply" ->
// ["post/comment", "post"].
func AncestorPaths(protocolPath string) []string {
	segments := SplitProtocolPath(protocolPath)
	if len(segments) <= 1 {
		return nil
	}
	var ancestors []string
	for i := len(segments) - 1; i > 0; i-- {
		ancestors = append(ancestors, strings.Join(segments[:i], "/"))
	}
	return ancestors
}
