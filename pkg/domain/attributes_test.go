package domain

import (
	"math"
	"testing"
)

func TestAttributeValues(t *testing.T) {
	values, err := AttributeValues(fullFactory())
	if err != nil {
		t.Fatalf("attribute values: %v", err)
	}
	want := map[string]string{
		"name":                                 "demo",
		"creator.userId":                       "user1",
		"creator.created":                      "10",
		"workspace.projects.0.source.location": "https://github.com/example/api.git",
		"workspace.projects.0.source.parameters.branch": "main",
		"button.attributes.counter":                     "true",
		"policies.create":                               "perUser",
	}
	for k, v := range want {
		if values[k] != v {
			t.Fatalf("expected %s=%q, got %q", k, v, values[k])
		}
	}
}

func TestMatchAttributes(t *testing.T) {
	values := map[string]string{"name": "demo", "creator.userId": "user1"}
	if !MatchAttributes(values, []Attribute{{Key: "name", Value: "demo"}, {Key: " creator.userId ", Value: "user1"}}) {
		t.Fatalf("expected match")
	}
	if MatchAttributes(values, []Attribute{{Key: "name", Value: "demo"}, {Key: "creator.userId", Value: "user2"}}) {
		t.Fatalf("all attributes must match")
	}
	if MatchAttributes(values, []Attribute{{Key: "missing", Value: ""}}) {
		t.Fatalf("absent keys must not match")
	}
}

func TestPaging(t *testing.T) {
	if _, err := CheckPaging(10, -1); KindOf(err) != KindInvalidArgument {
		t.Fatalf("expected negative skip to be rejected, got %v", err)
	}
	if limit, err := CheckPaging(0, 0); err != nil || limit != DefaultPageSize {
		t.Fatalf("expected default page size, got %d %v", limit, err)
	}

	c1, c2 := int64(2), int64(1)
	records := []*Record{
		{Factory: Factory{ID: "b", Creator: &Author{Created: &c1}}},
		{Factory: Factory{ID: "a", Creator: &Author{Created: &c1}}},
		{Factory: Factory{ID: "c", Creator: &Author{Created: &c2}}},
		{Factory: Factory{ID: "d"}},
	}
	SortRecords(records)
	var order string
	for _, r := range records {
		order += r.ID()
	}
	if order != "dcab" {
		t.Fatalf("unexpected order %q", order)
	}
	if got := Page(records, 2, 1); len(got) != 2 || got[0].ID() != "c" {
		t.Fatalf("unexpected page %+v", got)
	}
	if got := Page(records, 5, 3); len(got) != 1 {
		t.Fatalf("expected tail page of one, got %d", len(got))
	}
	if got := Page(records, 5, 9); len(got) != 0 {
		t.Fatalf("expected empty page past the end")
	}
	if got := Page(records, math.MaxInt, 1); len(got) != 3 || got[0].ID() != "c" {
		t.Fatalf("expected huge page to run to the end, got %d", len(got))
	}
}
