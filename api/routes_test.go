package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formlogic-engine/db"
	"formlogic-engine/form"
)

func setupTestServer(t *testing.T) *mux.Router {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api_test.db")
	require.NoError(t, db.InitDB(path))
	t.Cleanup(func() {
		require.NoError(t, db.CloseDB())
	})

	router := mux.NewRouter()
	ConfigureRoutes(router)
	return router
}

func signupFormRequest() FormRequest {
	return FormRequest{
		Name: "Signup",
		Fields: []form.Field{
			{ID: "plan", Type: form.FieldSelect, Options: []string{"Basic", "Business"}},
			{ID: "companySize", Type: form.FieldText, DefaultHidden: true},
			{ID: "email", Type: form.FieldEmail, Required: true},
		},
		Logic: form.FormLogic{
			Rules: []form.Rule{{
				ID: "r1", Name: "show company size", Enabled: true,
				ConditionLogic: form.CombineAll,
				Conditions:     []form.Condition{{FieldID: "plan", Operator: form.OpEquals, Value: "Business"}},
				Actions: []form.Action{
					{Type: form.ActionShow, TargetFieldID: "companySize"},
					{Type: form.ActionRequire, TargetFieldID: "companySize"},
				},
			}},
		},
	}
}

func createForm(t *testing.T, router *mux.Router, req FormRequest) (formID, slug string) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/forms", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["form_id"].(string), resp["slug"].(string)
}

func TestCreateAndGetForm(t *testing.T) {
	router := setupTestServer(t)
	formID, slug := createForm(t, router, signupFormRequest())
	assert.Equal(t, "signup", slug)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/forms/"+formID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var f form.Form
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, "Signup", f.Name)
	assert.Len(t, f.Fields, 3)
	assert.Len(t, f.Logic.Rules, 1)
}

func TestCreateFormRejectsInvalidPayloads(t *testing.T) {
	router := setupTestServer(t)

	t.Run("missing name", func(t *testing.T) {
		req := signupFormRequest()
		req.Name = ""
		body, _ := json.Marshal(req)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/forms", bytes.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("select without options", func(t *testing.T) {
		req := signupFormRequest()
		req.Fields[0].Options = nil
		body, _ := json.Marshal(req)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/forms", bytes.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/forms", strings.NewReader("{nope")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUpdateAndDeleteForm(t *testing.T) {
	router := setupTestServer(t)
	formID, _ := createForm(t, router, signupFormRequest())

	update := signupFormRequest()
	update.Name = "Signup v2"
	body, _ := json.Marshal(update)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("PUT", "/forms/"+formID, bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/forms/"+formID, nil))
	var f form.Form
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, "Signup v2", f.Name)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/forms/"+formID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/forms/"+formID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvaluateEndpoint(t *testing.T) {
	router := setupTestServer(t)
	formID, _ := createForm(t, router, signupFormRequest())

	body, _ := json.Marshal(EvaluateRequest{Values: map[string]string{"plan": "Business"}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/forms/"+formID+"/evaluate", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var result form.EvalResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Fields["companySize"].Visible)
	assert.True(t, result.Fields["companySize"].Required)

	body, _ = json.Marshal(EvaluateRequest{Values: map[string]string{"plan": "Basic"}})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/forms/"+formID+"/evaluate", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Fields["companySize"].Visible)
}

func TestEvaluateUnknownForm(t *testing.T) {
	router := setupTestServer(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/forms/nope/evaluate", strings.NewReader("{}")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicFormRender(t *testing.T) {
	router := setupTestServer(t)
	_, slug := createForm(t, router, signupFormRequest())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/f/"+slug, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	html := rec.Body.String()
	assert.Contains(t, html, `name="plan"`)
	assert.Contains(t, html, `name="email"`)
	// Default-hidden field is not rendered until a rule reveals it.
	assert.NotContains(t, html, `name="companySize"`)
}

func TestPublicFormRenderEscapesName(t *testing.T) {
	router := setupTestServer(t)

	// Stored directly, bypassing the save-time sanitization pass, to
	// check the render site escapes on its own.
	f := form.Form{
		ID:   "f1",
		Slug: "raw",
		Name: `Feedback <script>alert(1)</script>`,
		Fields: []form.Field{
			{ID: "comment", Type: form.FieldText},
		},
	}
	raw, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, db.SaveForm(f.ID, f.Slug, f.Name, "{}", string(raw)))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/f/raw", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	html := rec.Body.String()
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestRequestLoggerLogsRequests(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	router := mux.NewRouter()
	router.Use(RequestLogger)
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), "GET /ping")
}

func TestSubmitFlow(t *testing.T) {
	router := setupTestServer(t)
	formID, slug := createForm(t, router, signupFormRequest())

	postValues := func(values url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/f/"+slug, strings.NewReader(values.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	// Business plan without companySize: the rule makes it required.
	rec := postValues(url.Values{"plan": {"Business"}, "email": {"ada@example.com"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "This field is required.")

	// Complete submission is stored.
	rec = postValues(url.Values{"plan": {"Business"}, "email": {"ada@example.com"}, "companySize": {"50"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Thank you")

	// Basic plan drops the hidden companySize value.
	rec = postValues(url.Values{"plan": {"Basic"}, "email": {"bob@example.com"}, "companySize": {"9000"}})
	require.Equal(t, http.StatusOK, rec.Code)

	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, httptest.NewRequest("GET", "/forms/"+formID+"/submissions", nil))
	require.Equal(t, http.StatusOK, listRec.Code)

	var subs []struct {
		SeqID  int               `json:"seq_id"`
		Values map[string]string `json:"values"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &subs))
	require.Len(t, subs, 2)
	assert.Equal(t, 1, subs[0].SeqID)
	assert.Equal(t, "50", subs[0].Values["companySize"])
	assert.Equal(t, 2, subs[1].SeqID)
	assert.NotContains(t, subs[1].Values, "companySize")
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "customer-feedback", slugify("Customer Feedback"))
	assert.Equal(t, "q3-2026-survey", slugify("  Q3/2026 Survey!  "))
	assert.NotEmpty(t, slugify("!!!"))
}
