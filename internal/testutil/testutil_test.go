package testutil

import (
	"net/http/httptest"
	"testing"
)

func TestNewTestServer(t *testing.T) {
	server := NewTestServer()
	if server == nil {
		t.Fatal("NewTestServer returned nil")
	}
	if server.Handler() == nil {
		t.Error("Expected test server to expose a handler")
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		body   interface{}
	}{
		{
			name:   "GET request with no body",
			method: "GET",
			url:    "/session",
			body:   nil,
		},
		{
			name:   "POST request with JSON body",
			method: "POST",
			url:    "/call",
			body:   map[string]string{"phone_number": "+15551234567"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateHTTPRequest(t, tt.method, tt.url, tt.body)

			if req == nil {
				t.Fatal("Expected request to be created, got nil")
			}
			if req.Method != tt.method {
				t.Errorf("Expected method %s, got %s", tt.method, req.Method)
			}
			if req.URL.Path != tt.url {
				t.Errorf("Expected URL %s, got %s", tt.url, req.URL.Path)
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.Body.WriteString(`{"status":"ok","result":{"feedback_required":false}}`)

	response := AssertJSONResponse(t, rr, "ok")
	if response == nil {
		t.Fatal("Expected response map to be returned")
	}
	if _, ok := response["result"]; !ok {
		t.Error("Expected result field in decoded response")
	}
}

func TestMustMarshalJSONRoundTrip(t *testing.T) {
	testData := map[string]interface{}{
		"lead_id": "lead-1",
		"count":   float64(3),
	}

	data := MustMarshalJSON(t, testData)
	if len(data) == 0 {
		t.Fatal("Expected non-empty JSON data")
	}

	var decoded map[string]interface{}
	MustUnmarshalJSON(t, data, &decoded)

	if decoded["lead_id"] != "lead-1" {
		t.Errorf("Expected lead_id to be 'lead-1', got %v", decoded["lead_id"])
	}
	if decoded["count"] != float64(3) {
		t.Errorf("Expected count to be 3, got %v", decoded["count"])
	}
}
