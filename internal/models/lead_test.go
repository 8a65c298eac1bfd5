package models

import "testing"

func TestNormalizeLead(t *testing.T) {
	tests := []struct {
		name     string
		raw      map[string]any
		expected LeadRef
	}{
		{
			name: "backend shape",
			raw: map[string]any{
				"_id":     "68b1c2",
				"name":    "Asha Patel",
				"leadId":  float64(42),
				"stageId": "stage-3",
			},
			expected: LeadRef{ID: "68b1c2", NumericID: 42, StageID: "stage-3", Name: "Asha Patel"},
		},
		{
			name: "ui shape with id and leadName",
			raw: map[string]any{
				"id":       "68b1c2",
				"leadName": "Asha Patel",
				"leadId":   "42",
			},
			expected: LeadRef{ID: "68b1c2", NumericID: 42, Name: "Asha Patel"},
		},
		{
			name: "nested stage object",
			raw: map[string]any{
				"_id":     "68b1c2",
				"name":    "Asha Patel",
				"stageId": map[string]any{"_id": "stage-7", "name": "Qualified"},
			},
			expected: LeadRef{ID: "68b1c2", StageID: "stage-7", Name: "Asha Patel"},
		},
		{
			name: "leadId as only id",
			raw: map[string]any{
				"leadId": "lead-str",
			},
			expected: LeadRef{ID: "lead-str", Name: "Unknown Lead"},
		},
		{
			name:     "empty payload",
			raw:      map[string]any{},
			expected: LeadRef{ID: "unknown", Name: "Unknown Lead"},
		},
		{
			name: "unparseable numeric id",
			raw: map[string]any{
				"_id":    "68b1c2",
				"name":   "Asha Patel",
				"leadId": "not-a-number",
			},
			expected: LeadRef{ID: "68b1c2", Name: "Asha Patel"},
		},
		{
			name: "int id types",
			raw: map[string]any{
				"_id":    "68b1c2",
				"name":   "Asha Patel",
				"leadId": 42,
			},
			expected: LeadRef{ID: "68b1c2", NumericID: 42, Name: "Asha Patel"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeLead(tt.raw)
			if got != tt.expected {
				t.Errorf("NormalizeLead() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestNormalizeLeadNilValues(t *testing.T) {
	raw := map[string]any{
		"_id":     nil,
		"name":    nil,
		"leadId":  nil,
		"stageId": nil,
	}
	got := NormalizeLead(raw)
	want := LeadRef{ID: "unknown", Name: "Unknown Lead"}
	if got != want {
		t.Errorf("NormalizeLead(nil values) = %+v, want %+v", got, want)
	}
}
