package workflow

import (
	"fmt"
	"reflect"
)

type DiffType string

const (
	DiffTypeMismatch      DiffType = "type_mismatch"
	DiffNullMismatch      DiffType = "null_mismatch"
	DiffMissingInRecorded DiffType = "missing_in_recorded"
	DiffMissingInLive     DiffType = "missing_in_live"
	DiffValueMismatch     DiffType = "value_mismatch"
)

type StateDiff struct {
	Recorded interface{} `json:"recorded"`
	Live     interface{} `json:"live"`
	Type     DiffType    `json:"type"`
}

// CompareStates produces a flat path -> diff map between a recorded state and
// a live re-execution, for asserting that a deterministic replay matches a
// fresh run. An empty result means the states are structurally identical.
func CompareStates(recorded, live map[string]interface{}) map[string]StateDiff {
	diffs := make(map[string]StateDiff)
	compareMaps("", recorded, live, diffs)
	return diffs
}

func compareMaps(prefix string, recorded, live map[string]interface{}, diffs map[string]StateDiff) {
	for key, rv := range recorded {
		path := joinPath(prefix, key)
		lv, ok := live[key]
		if !ok {
			diffs[path] = StateDiff{Recorded: rv, Type: DiffMissingInLive}
			continue
		}
		compareValues(path, rv, lv, diffs)
	}
	for key, lv := range live {
		if _, ok := recorded[key]; !ok {
			diffs[joinPath(prefix, key)] = StateDiff{Live: lv, Type: DiffMissingInRecorded}
		}
	}
}

func compareValues(path string, recorded, live interface{}, diffs map[string]StateDiff) {
	if recorded == nil || live == nil {
		if recorded != live {
			diffs[path] = StateDiff{Recorded: recorded, Live: live, Type: DiffNullMismatch}
		}
		return
	}

	rm, rIsMap := recorded.(map[string]interface{})
	lm, lIsMap := live.(map[string]interface{})
	if rIsMap && lIsMap {
		compareMaps(path, rm, lm, diffs)
		return
	}

	if reflect.TypeOf(recorded) != reflect.TypeOf(live) {
		diffs[path] = StateDiff{Recorded: recorded, Live: live, Type: DiffTypeMismatch}
		return
	}

	if !reflect.DeepEqual(recorded, live) {
		diffs[path] = StateDiff{Recorded: recorded, Live: live, Type: DiffValueMismatch}
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return fmt.Sprintf("%s.%s", prefix, key)
}
