package main

import (
	"strings"
)

// Concept is a single spectrum prompt: two opposing anchors on a 0-100 scale.
type Concept struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

func (c Concept) String() string {
	return c.Left + " vs " + c.Right
}

// builtinConcepts is the normal-mode prompt pool.
var builtinConcepts = []Concept{
	{"Hot", "Cold"},
	{"Underrated", "Overrated"},
	{"Guilty pleasure", "Actual pleasure"},
	{"Scary", "Not scary"},
	{"Round", "Pointy"},
	{"Fantasy", "Sci-Fi"},
	{"Bad habit", "Good habit"},
	{"Normal", "Weird"},
	{"Introvert", "Extrovert"},
	{"Dry", "Wet"},
	{"Sad song", "Happy song"},
	{"Villain", "Hero"},
	{"Cheap", "Expensive"},
	{"Rough", "Smooth"},
	{"Low calorie", "High calorie"},
	{"Useless", "Useful"},
	{"Dangerous", "Safe"},
	{"Mild", "Spicy"},
	{"Quiet place", "Loud place"},
	{"Hard to find", "Easy to find"},
	{"Forgettable", "Memorable"},
	{"Dark", "Light"},
	{"Optional", "Mandatory"},
	{"Ugly", "Beautiful"},
	{"Old-fashioned", "Futuristic"},
	{"Bad movie", "Good movie"},
	{"Flexible", "Rigid"},
	{"Secret", "Public knowledge"},
	{"Worst day of the year", "Best day of the year"},
	{"Unhealthy", "Healthy"},
	{"Fragile", "Durable"},
	{"Casual", "Formal"},
}

// parsePrompt splits a custom "<left> vs <right>" prompt into a Concept.
// The separator is matched case-insensitively and both sides must be
// non-empty after trimming.
func parsePrompt(raw string) (Concept, bool) {
	lower := strings.ToLower(raw)
	idx := strings.Index(lower, " vs ")
	if idx < 0 {
		return Concept{}, false
	}

	left := strings.TrimSpace(raw[:idx])
	right := strings.TrimSpace(raw[idx+len(" vs "):])
	if left == "" || right == "" {
		return Concept{}, false
	}

	return Concept{Left: left, Right: right}, true
}
