package client

import (
	"context"
	"fmt"
	"sort"

	"github.com/muurk/printhost/internal/settings"
)

// UpdateResult is the outcome of UpdateAndVerify
type UpdateResult struct {
	// Settings is the document the server answered with
	Settings map[string]any

	// Mismatches lists patched values the server did not take
	Mismatches []string
}

// Success reports whether every patched value was applied
func (r *UpdateResult) Success() bool {
	return len(r.Mismatches) == 0
}

// UpdateAndVerify posts patch and compares the answer against it. The server
// silently skips values it cannot coerce; they show up as mismatches.
func (c *Client) UpdateAndVerify(ctx context.Context, patch map[string]any) (*UpdateResult, error) {
	actual, err := c.UpdateSettings(ctx, patch)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{
		Settings:   actual,
		Mismatches: Verify(patch, actual),
	}, nil
}

// Verify lists every leaf of patch whose value differs in actual. Values
// match when they are equal or render to the same text, so "4" matches 4.
func Verify(patch, actual map[string]any) []string {
	var mismatches []string
	verifyInto(&mismatches, nil, patch, actual)
	sort.Strings(mismatches)
	return mismatches
}

func verifyInto(out *[]string, prefix settings.Path, patch, actual map[string]any) {
	for key, want := range patch {
		p := prefix.Child(key)
		got, ok := actual[key]

		if sub, isMap := want.(map[string]any); isMap {
			actualSub, _ := got.(map[string]any)
			verifyInto(out, p, sub, actualSub)
			continue
		}

		if !ok {
			*out = append(*out, fmt.Sprintf("%s: sent %v, server has no such setting", p, want))
			continue
		}
		if !settings.Equal(want, got) && settings.Stringify(want) != settings.Stringify(got) {
			*out = append(*out, fmt.Sprintf("%s: sent %v, server has %v", p, want, got))
		}
	}
}
