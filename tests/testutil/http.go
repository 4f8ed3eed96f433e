package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// HTTPTestCase drives one handler invocation. Params stands in for the
// route parameters gin would extract from the matched path.
type HTTPTestCase struct {
	Name           string
	Method         string
	Path           string
	Query          url.Values
	Params         gin.Params
	Body           any
	Headers        map[string]string
	ExpectedStatus int
	ExpectedBody   map[string]any
	Validate       func(t *testing.T, tc *TestContext)
}

// Envelope mirrors the JSON shape every job API response shares.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Total int `json:"total"`
	} `json:"meta"`
}

// RunHTTPTestCases runs each case as a subtest.
func RunHTTPTestCases(t *testing.T, handler gin.HandlerFunc, cases []HTTPTestCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			RunHTTPTestCase(t, handler, tc)
		})
	}
}

// RunHTTPTestCase calls handler with a request built from tc and checks
// the recorded response.
func RunHTTPTestCase(t *testing.T, handler gin.HandlerFunc, tc HTTPTestCase) {
	t.Helper()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = newRequest(t, tc)
	c.Params = tc.Params

	handler(c)

	ctx := &TestContext{Context: c, Recorder: rec}
	if tc.ExpectedStatus != 0 {
		assert.Equal(t, tc.ExpectedStatus, rec.Code, "status for %s %s", c.Request.Method, c.Request.URL)
	}
	if tc.ExpectedBody != nil {
		body := JSONResponse(t, ctx)
		for key, want := range tc.ExpectedBody {
			assert.Equal(t, want, body[key], "body key %q", key)
		}
	}
	if tc.Validate != nil {
		tc.Validate(t, ctx)
	}
}

func newRequest(t *testing.T, tc HTTPTestCase) *http.Request {
	t.Helper()

	method, path := tc.Method, tc.Path
	if method == "" {
		method = http.MethodGet
	}
	if path == "" {
		path = "/"
	}
	if len(tc.Query) > 0 {
		path += "?" + tc.Query.Encode()
	}

	var body bytes.Buffer
	if tc.Body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(tc.Body))
	}
	req := httptest.NewRequest(method, path, &body)
	if tc.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range tc.Headers {
		req.Header.Set(k, v)
	}
	return req
}

// JSONResponse decodes the response body into a generic map.
func JSONResponse(t *testing.T, tc *TestContext) map[string]any {
	t.Helper()
	return JSONResponseAs[map[string]any](t, tc)
}

// JSONResponseAs decodes the response body into T.
func JSONResponseAs[T any](t *testing.T, tc *TestContext) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(tc.ResponseBody(), &out), "response: %s", tc.ResponseBody())
	return out
}

// DecodeEnvelope decodes the response envelope and, when data is non-nil,
// its data member.
func DecodeEnvelope(t *testing.T, tc *TestContext, data any) Envelope {
	t.Helper()
	env := JSONResponseAs[Envelope](t, tc)
	if data != nil {
		require.NotEmpty(t, env.Data, "response carries no data")
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

// AssertErrorResponse checks that the envelope reports failure with code.
func AssertErrorResponse(t *testing.T, tc *TestContext, code string) {
	t.Helper()
	env := JSONResponseAs[Envelope](t, tc)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error, "response carries no error")
	assert.Equal(t, code, env.Error.Code)
}
