package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AttributeValues flattens the JSON form of f into dotted-path keys with
// scalar string values. Array elements are addressed by index.
func AttributeValues(f Factory) (map[string]string, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode factory attributes: %w", err)
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decode factory attributes: %w", err)
	}
	out := make(map[string]string)
	flatten("", tree, out)
	return out, nil
}

func flatten(prefix string, node any, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			flatten(joinPath(prefix, k), child, out)
		}
	case []any:
		for i, child := range v {
			flatten(joinPath(prefix, strconv.Itoa(i)), child, out)
		}
	case nil:
	case string:
		out[prefix] = v
	case float64:
		out[prefix] = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		out[prefix] = strconv.FormatBool(v)
	default:
		out[prefix] = fmt.Sprint(v)
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// MatchAttributes reports whether values satisfy every filter in attrs.
func MatchAttributes(values map[string]string, attrs []Attribute) bool {
	for _, a := range attrs {
		got, ok := values[strings.TrimSpace(a.Key)]
		if !ok || got != a.Value {
			return false
		}
	}
	return true
}

// CheckPaging normalises maxItems and rejects a negative skipCount.
func CheckPaging(maxItems, skipCount int) (int, error) {
	if skipCount < 0 {
		return 0, InvalidArgumentf("skipCount must be greater than or equal to 0, got %d", skipCount)
	}
	if maxItems <= 0 {
		maxItems = DefaultPageSize
	}
	return maxItems, nil
}

// SortRecords orders records by creation time then id. Stores use it so that
// pages are stable for an unchanged dataset.
func SortRecords(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ci, cj := createdAt(records[i]), createdAt(records[j])
		if ci != cj {
			return ci < cj
		}
		return records[i].ID() < records[j].ID()
	})
}

// Page slices records according to maxItems and skipCount.
func Page(records []*Record, maxItems, skipCount int) []*Record {
	if skipCount >= len(records) {
		return []*Record{}
	}
	end := len(records)
	if maxItems < end-skipCount {
		end = skipCount + maxItems
	}
	return records[skipCount:end]
}

func createdAt(r *Record) int64 {
	if r.Factory.Creator == nil || r.Factory.Creator.Created == nil {
		return 0
	}
	return *r.Factory.Creator.Created
}
