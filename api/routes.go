package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"formlogic-engine/db"
	"formlogic-engine/form"
)

var validate = validator.New()

// FormRequest is the payload for creating or updating a form. The slug
// is optional on create; it is derived from the name when absent.
type FormRequest struct {
	Slug   string         `json:"slug"`
	Name   string         `json:"name" validate:"required"`
	Meta   form.MetaData  `json:"meta"`
	Fields []form.Field   `json:"fields" validate:"required,min=1"`
	Logic  form.FormLogic `json:"logic"`
}

// EvaluateRequest carries the current field values from the rendering
// surface for one evaluation pass.
type EvaluateRequest struct {
	Values map[string]string `json:"values"`
}

// ConfigureRoutes sets up all the HTTP API endpoints.
func ConfigureRoutes(r *mux.Router) {
	r.HandleFunc("/forms", CreateFormHandler).Methods("POST")
	r.HandleFunc("/forms", ListFormsHandler).Methods("GET")
	r.HandleFunc("/forms/{form_id}", GetFormHandler).Methods("GET")
	r.HandleFunc("/forms/{form_id}", UpdateFormHandler).Methods("PUT")
	r.HandleFunc("/forms/{form_id}", DeleteFormHandler).Methods("DELETE")
	r.HandleFunc("/forms/{form_id}/evaluate", EvaluateHandler).Methods("POST")
	r.HandleFunc("/forms/{form_id}/submissions", ListSubmissionsHandler).Methods("GET")
	r.HandleFunc("/f/{slug}", PublicFormHandler).Methods("GET")
	r.HandleFunc("/f/{slug}", SubmitFormHandler).Methods("POST")

	// Basic landing page or instructions
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<h1>Form Logic Engine</h1>
			<p>Available Routes:</p>
			<ul>
				<li><code>POST /forms</code> - Create a form</li>
				<li><code>GET /forms</code> - List forms</li>
				<li><code>GET /forms/:form_id</code> - Get a form document</li>
				<li><code>PUT /forms/:form_id</code> - Update a form</li>
				<li><code>DELETE /forms/:form_id</code> - Delete a form and its submissions</li>
				<li><code>POST /forms/:form_id/evaluate</code> - Evaluate form logic against current values</li>
				<li><code>GET /forms/:form_id/submissions</code> - List submissions</li>
				<li><code>GET /f/:slug</code> - Render the public form</li>
				<li><code>POST /f/:slug</code> - Submit the public form</li>
			</ul>
		`)
	}).Methods("GET")
}

// RequestLogger logs every request with its duration. Installed on the
// router when debug mode is enabled.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("API: %s %s completed in %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// sendJSONResponse is a helper to standardize JSON responses.
func sendJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

func sendError(w http.ResponseWriter, statusCode int, message string) {
	sendJSONResponse(w, statusCode, map[string]string{"error": message})
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives a URL slug from a form name.
func slugify(name string) string {
	slug := strings.Trim(slugCleaner.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = uuid.New().String()
	}
	return slug
}

// loadFormDocument fetches a form row by ID and unmarshals its JSON document.
func loadFormDocument(formID string) (*form.Form, error) {
	rec, err := db.GetForm(formID)
	if err != nil {
		return nil, err
	}
	return decodeFormRecord(rec)
}

func decodeFormRecord(rec *db.FormRecord) (*form.Form, error) {
	var f form.Form
	if err := json.Unmarshal([]byte(rec.RawJSON), &f); err != nil {
		return nil, fmt.Errorf("error unmarshalling form document %s: %w", rec.ID, err)
	}
	f.CreatedAt = rec.CreatedAt
	f.UpdatedAt = rec.UpdatedAt
	return &f, nil
}

// saveFormDocument validates, sanitizes and persists a form document.
// Validation warnings (dangling field references) are returned to the
// caller but do not block the save.
func saveFormDocument(f *form.Form) ([]string, error) {
	warnings, err := form.ValidateForm(f)
	if err != nil {
		return nil, err
	}
	form.Sanitize(f)

	rawJSON, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("error marshalling form document: %w", err)
	}
	metaJSON, err := json.Marshal(f.Meta)
	if err != nil {
		return nil, fmt.Errorf("error marshalling form meta: %w", err)
	}
	if err := db.SaveForm(f.ID, f.Slug, f.Name, string(metaJSON), string(rawJSON)); err != nil {
		return nil, fmt.Errorf("error saving form %s: %w", f.ID, err)
	}
	return warnings, nil
}

// CreateFormHandler handles POST /forms.
func CreateFormHandler(w http.ResponseWriter, r *http.Request) {
	var req FormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := validate.Struct(req); err != nil {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid form payload: %v", err))
		return
	}

	slug := req.Slug
	if slug == "" {
		slug = slugify(req.Name)
	}
	f := form.Form{
		ID:     uuid.New().String(),
		Slug:   slug,
		Name:   req.Name,
		Meta:   req.Meta,
		Fields: req.Fields,
		Logic:  req.Logic,
	}

	warnings, err := saveFormDocument(&f)
	if err != nil {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid form: %v", err))
		return
	}

	sendJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"message":  "Form created.",
		"form_id":  f.ID,
		"slug":     f.Slug,
		"form_url": fmt.Sprintf("/f/%s", f.Slug),
		"warnings": warnings,
	})
	log.Printf("API: Created form %s (slug %s)", f.ID, f.Slug)
}

// ListFormsHandler handles GET /forms.
func ListFormsHandler(w http.ResponseWriter, r *http.Request) {
	records, err := db.ListForms()
	if err != nil {
		sendError(w, http.StatusInternalServerError, fmt.Sprintf("Error listing forms: %v", err))
		return
	}

	type formSummary struct {
		ID        string `json:"id"`
		Slug      string `json:"slug"`
		Name      string `json:"name"`
		UpdatedAt string `json:"updated_at"`
	}
	summaries := make([]formSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, formSummary{
			ID:        rec.ID,
			Slug:      rec.Slug,
			Name:      rec.Name,
			UpdatedAt: rec.UpdatedAt.Format(db.TimeFormat),
		})
	}
	sendJSONResponse(w, http.StatusOK, summaries)
}

// GetFormHandler handles GET /forms/{form_id}.
func GetFormHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	f, err := loadFormDocument(vars["form_id"])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendError(w, http.StatusNotFound, "Form not found.")
		} else {
			sendError(w, http.StatusInternalServerError, fmt.Sprintf("Error loading form: %v", err))
		}
		return
	}
	sendJSONResponse(w, http.StatusOK, f)
}

// UpdateFormHandler handles PUT /forms/{form_id}.
func UpdateFormHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	existing, err := loadFormDocument(vars["form_id"])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendError(w, http.StatusNotFound, "Form not found.")
		} else {
			sendError(w, http.StatusInternalServerError, fmt.Sprintf("Error loading form: %v", err))
		}
		return
	}

	var req FormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := validate.Struct(req); err != nil {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid form payload: %v", err))
		return
	}

	f := form.Form{
		ID:     existing.ID,
		Slug:   existing.Slug,
		Name:   req.Name,
		Meta:   req.Meta,
		Fields: req.Fields,
		Logic:  req.Logic,
	}
	if req.Slug != "" {
		f.Slug = req.Slug
	}

	warnings, err := saveFormDocument(&f)
	if err != nil {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid form: %v", err))
		return
	}

	sendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message":  "Form updated.",
		"form_id":  f.ID,
		"slug":     f.Slug,
		"warnings": warnings,
	})
	log.Printf("API: Updated form %s", f.ID)
}

// DeleteFormHandler handles DELETE /forms/{form_id}.
func DeleteFormHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	formID := vars["form_id"]

	if err := db.DeleteForm(formID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendError(w, http.StatusNotFound, "Form not found.")
		} else {
			sendError(w, http.StatusInternalServerError, fmt.Sprintf("Error deleting form: %v", err))
		}
		return
	}

	sendJSONResponse(w, http.StatusOK, map[string]string{"message": "Form deleted."})
	log.Printf("API: Deleted form %s", formID)
}

// EvaluateHandler handles POST /forms/{form_id}/evaluate. This is the
// call the rendering surface makes on every value change; it returns
// the per-field presentation overrides and active messages.
func EvaluateHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	f, err := loadFormDocument(vars["form_id"])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendError(w, http.StatusNotFound, "Form not found.")
		} else {
			sendError(w, http.StatusInternalServerError, fmt.Sprintf("Error loading form: %v", err))
		}
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Values == nil {
		req.Values = make(map[string]string)
	}

	result := form.Evaluate(f.Fields, f.Logic, req.Values)
	sendJSONResponse(w, http.StatusOK, result)
}

// ListSubmissionsHandler handles GET /forms/{form_id}/submissions.
func ListSubmissionsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	formID := vars["form_id"]

	if _, err := db.GetForm(formID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			sendError(w, http.StatusNotFound, "Form not found.")
		} else {
			sendError(w, http.StatusInternalServerError, fmt.Sprintf("Error loading form: %v", err))
		}
		return
	}

	records, err := db.ListSubmissions(formID)
	if err != nil {
		sendError(w, http.StatusInternalServerError, fmt.Sprintf("Error listing submissions: %v", err))
		return
	}

	type submission struct {
		ID        string            `json:"id"`
		SeqID     int               `json:"seq_id"`
		Values    map[string]string `json:"values"`
		CreatedAt string            `json:"created_at"`
	}
	out := make([]submission, 0, len(records))
	for _, rec := range records {
		values := make(map[string]string)
		if err := json.Unmarshal([]byte(rec.Values), &values); err != nil {
			log.Printf("Warning: corrupt submission %s for form %s: %v", rec.ID, formID, err)
			continue
		}
		out = append(out, submission{
			ID:        rec.ID,
			SeqID:     rec.SeqID,
			Values:    values,
			CreatedAt: rec.CreatedAt.Format(db.TimeFormat),
		})
	}
	sendJSONResponse(w, http.StatusOK, out)
}

func loadFormBySlug(w http.ResponseWriter, slug string) *form.Form {
	rec, err := db.GetFormBySlug(slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Form not found.", http.StatusNotFound)
		} else {
			http.Error(w, fmt.Sprintf("Error loading form: %v", err), http.StatusInternalServerError)
		}
		return nil
	}
	f, err := decodeFormRecord(rec)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error loading form: %v", err), http.StatusInternalServerError)
		return nil
	}
	return f
}

// PublicFormHandler renders the public HTML form with the initial logic
// state applied (no values entered yet).
func PublicFormHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	f := loadFormBySlug(w, vars["slug"])
	if f == nil {
		return
	}

	state := form.Evaluate(f.Fields, f.Logic, map[string]string{})
	formHTML := form.GenerateHTMLForm(f, state, map[string]string{}, nil)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	name := template.HTMLEscapeString(f.Name)
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>%s</title></head><body>
		<h1>%s</h1>
		%s
	</body></html>`, name, name, formHTML)
	log.Printf("API: Rendered public form %s (slug %s)", f.ID, f.Slug)
}

// SubmitFormHandler accepts a public form submission, re-evaluates the
// logic server side, validates the visible required fields, and stores
// the answer.
func SubmitFormHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	f := loadFormBySlug(w, vars["slug"])
	if f == nil {
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("Error parsing form data: %v", err), http.StatusBadRequest)
		return
	}

	values := make(map[string]string)
	for key, vs := range r.PostForm {
		if len(vs) > 0 {
			values[key] = vs[0] // Take the first value for each field
		}
	}
	form.SanitizeValues(f.Fields, values)

	// The client's view of the logic is advisory only; the stored answer
	// is shaped by a server-side evaluation of the submitted values.
	state := form.Evaluate(f.Fields, f.Logic, values)

	validationErrors := form.ValidateSubmission(f.Fields, state, values)
	if len(validationErrors) > 0 {
		formHTML := form.GenerateHTMLForm(f, state, values, validationErrors)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		name := template.HTMLEscapeString(f.Name)
		fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>%s</title></head><body>
			<h1>%s - Please correct errors</h1>
			%s
		</body></html>`, name, name, formHTML)
		log.Printf("API: Submission for form %s had validation errors.", f.ID)
		return
	}

	answer := form.CollectAnswer(f.Fields, state, values)
	answerJSON, err := json.Marshal(answer)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error marshalling submission: %v", err), http.StatusInternalServerError)
		return
	}

	seq, err := db.SaveSubmission(uuid.New().String(), f.ID, string(answerJSON))
	if err != nil {
		http.Error(w, fmt.Sprintf("Error saving submission: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>%s</title></head><body>
		<h1>Thank you</h1>
		<p>Your response has been recorded.</p>
	</body></html>`, template.HTMLEscapeString(f.Name))
	log.Printf("API: Stored submission #%d for form %s", seq, f.ID)
}
