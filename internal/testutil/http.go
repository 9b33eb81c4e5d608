package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// HTTPTestHelper provides utilities for HTTP testing
type HTTPTestHelper struct {
	Handler http.Handler
}

// NewHTTPTestHelper creates a new HTTP test helper
func NewHTTPTestHelper(handler http.Handler) *HTTPTestHelper {
	return &HTTPTestHelper{Handler: handler}
}

// BearerHeaders returns the Authorization header for token
func BearerHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// MakeRequest creates and executes an HTTP request with a JSON body,
// returning the response
func (h *HTTPTestHelper) MakeRequest(method, path string, body interface{}) *httptest.ResponseRecorder {
	return h.MakeRequestWithHeaders(method, path, body, nil)
}

// MakeRequestWithHeaders creates and executes an HTTP request with a JSON
// body and custom headers
func (h *HTTPTestHelper) MakeRequestWithHeaders(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		reqBody = bytes.NewReader(data)
		if headers == nil {
			headers = map[string]string{}
		}
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}
	return h.MakeRawRequest(method, path, reqBody, headers)
}

// MakeRawRequest executes an HTTP request with an unencoded body
func (h *HTTPTestHelper) MakeRawRequest(method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rr := httptest.NewRecorder()
	h.Handler.ServeHTTP(rr, req)
	return rr
}

// DecodeJSON parses a JSON response into target and fails the test when
// the body is not valid JSON
func DecodeJSON(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(target); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
}

// AssertJSONResponse checks if a response has the expected JSON structure
func AssertJSONResponse(body *bytes.Buffer, expected interface{}) error {
	var actual interface{}
	if err := json.NewDecoder(body).Decode(&actual); err != nil {
		return err
	}

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		return err
	}

	actualJSON, err := json.Marshal(actual)
	if err != nil {
		return err
	}

	if string(actualJSON) != string(expectedJSON) {
		return fmt.Errorf("expected %s, got %s", string(expectedJSON), string(actualJSON))
	}

	return nil
}
