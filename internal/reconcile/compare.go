package reconcile

import (
	"fmt"
	"reflect"
)

// CompareMode governs whether remote-only list extras count as drift.
type CompareMode int

const (
	// ModeOverwrite reports remote-side extras as differences to be removed.
	ModeOverwrite CompareMode = iota
	// ModePreserve ignores remote-side extras; only items missing from the
	// remote side are reported.
	ModePreserve
)

// ParseCompareMode parses a configuration string into a CompareMode.
func ParseCompareMode(s string) (CompareMode, error) {
	switch s {
	case "overwrite", "":
		return ModeOverwrite, nil
	case "preserve":
		return ModePreserve, nil
	}
	return ModeOverwrite, fmt.Errorf("invalid compare mode %q: must be \"overwrite\" or \"preserve\"", s)
}

// DiffResult holds the two asymmetric difference trees of a comparison.
// LocalOnly carries values present locally and differing from or absent in
// the remote document; RemoteOnly the converse. Produced fresh per call.
type DiffResult struct {
	LocalOnly  map[string]any
	RemoteOnly map[string]any
	Differs    bool
}

// Compare recursively diffs two host documents rendered as nested key/value
// trees. Both sides are first normalized against the local document's shape
// so absent keys compare as correctly-typed empty values instead of causing
// type-mismatch artifacts.
func Compare(local, remote map[string]any, mode CompareMode) DiffResult {
	localN := normalizeShape(local, local)
	remoteN := normalizeShape(remote, local)

	localDiff, remoteDiff := diffMaps(localN, remoteN, mode)
	return DiffResult{
		LocalOnly:  localDiff,
		RemoteOnly: remoteDiff,
		Differs:    len(localDiff) > 0 || len(remoteDiff) > 0,
	}
}

// CompareDocuments is the typed convenience wrapper used by the orchestrator.
func CompareDocuments(local, remote *HostDocument, mode CompareMode) DiffResult {
	return Compare(local.Comparable(), remote.Comparable(), mode)
}

// normalizeShape fills keys present in template but absent in doc with the
// empty value of the template's type. Keys doc has beyond the template are
// kept as-is.
func normalizeShape(doc, template map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for k, tv := range template {
		if _, ok := out[k]; ok {
			continue
		}
		out[k] = emptyLike(tv)
	}
	return out
}

func emptyLike(v any) any {
	switch v.(type) {
	case map[string]any:
		return map[string]any{}
	case []any:
		return []any{}
	default:
		return ""
	}
}

// diffMaps compares two objects key by key over the union of their keys.
// A key present on only one side is wholly attributed to that side.
func diffMaps(local, remote map[string]any, mode CompareMode) (map[string]any, map[string]any) {
	localDiff := map[string]any{}
	remoteDiff := map[string]any{}

	keys := map[string]bool{}
	for k := range local {
		keys[k] = true
	}
	for k := range remote {
		keys[k] = true
	}

	for k := range keys {
		lv, lok := local[k]
		rv, rok := remote[k]

		switch {
		case lok && !rok:
			localDiff[k] = lv
		case !lok && rok:
			remoteDiff[k] = rv
		default:
			ld, rd := diffValues(lv, rv, mode)
			if ld != nil {
				localDiff[k] = ld
			}
			if rd != nil {
				remoteDiff[k] = rd
			}
		}
	}

	return localDiff, remoteDiff
}

// diffValues dispatches on the shapes of the two values. It returns the
// differing portion for each side, or nil when that side has no difference.
func diffValues(local, remote any, mode CompareMode) (any, any) {
	lm, lIsMap := local.(map[string]any)
	rm, rIsMap := remote.(map[string]any)
	if lIsMap && rIsMap {
		ld, rd := diffMaps(lm, rm, mode)
		var l, r any
		if len(ld) > 0 {
			l = ld
		}
		if len(rd) > 0 {
			r = rd
		}
		return l, r
	}

	ll, lIsList := local.([]any)
	rl, rIsList := remote.([]any)
	if lIsList && rIsList {
		if allSingletonMaps(ll) && allSingletonMaps(rl) {
			return diffSingletonLists(ll, rl, mode)
		}
		return diffPlainLists(ll, rl, mode)
	}

	if reflect.DeepEqual(local, remote) {
		return nil, nil
	}
	return local, remote
}

// allSingletonMaps reports whether every element of the list is a map with
// exactly one key (the tags/templates/groups convention).
func allSingletonMaps(list []any) bool {
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok || len(m) != 1 {
			return false
		}
	}
	return true
}

// diffSingletonLists flattens both lists into key-to-value mappings and diffs
// over the union of keys. A key present only locally is always a difference;
// a key present only remotely counts only under overwrite mode.
func diffSingletonLists(local, remote []any, mode CompareMode) (any, any) {
	lf := flattenSingletons(local)
	rf := flattenSingletons(remote)

	localDiff := map[string]any{}
	remoteDiff := map[string]any{}

	for k, lv := range lf {
		rv, ok := rf[k]
		switch {
		case !ok:
			localDiff[k] = lv
		case !reflect.DeepEqual(lv, rv):
			localDiff[k] = lv
			remoteDiff[k] = rv
		}
	}
	if mode == ModeOverwrite {
		for k, rv := range rf {
			if _, ok := lf[k]; !ok {
				remoteDiff[k] = rv
			}
		}
	}

	var l, r any
	if len(localDiff) > 0 {
		l = localDiff
	}
	if len(remoteDiff) > 0 {
		r = remoteDiff
	}
	return l, r
}

func flattenSingletons(list []any) map[string]any {
	out := make(map[string]any, len(list))
	for _, el := range list {
		for k, v := range el.(map[string]any) {
			if _, seen := out[k]; !seen {
				out[k] = v
			}
		}
	}
	return out
}

// diffPlainLists computes the symmetric set difference of two lists whose
// elements are compared whole. Preserve mode discards the remote-only set.
func diffPlainLists(local, remote []any, mode CompareMode) (any, any) {
	localOnly := subtract(local, remote)
	var remoteOnly []any
	if mode == ModeOverwrite {
		remoteOnly = subtract(remote, local)
	}

	var l, r any
	if len(localOnly) > 0 {
		l = localOnly
	}
	if len(remoteOnly) > 0 {
		r = remoteOnly
	}
	return l, r
}

func subtract(a, b []any) []any {
	var out []any
	for _, av := range a {
		found := false
		for _, bv := range b {
			if reflect.DeepEqual(av, bv) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, av)
		}
	}
	return out
}
