// Package enginetest provides an in-memory fake of the remote engine's REST
// API for tests.
//
// The fake keeps frames in memory, evaluates the subset of Rapids used by this
// module, runs interaction and GLM "jobs" that finish after a configurable
// number of polls, and reports model metrics produced by a ModelFactory.
package enginetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ModelFactory builds the "output" object of a fitted model from the builder
// parameters and the training and validation frames (valid may be nil).
type ModelFactory func(params url.Values, train, valid *Frame) map[string]interface{}

// Server is a fake engine.
type Server struct {
	*httptest.Server

	// Files maps import paths to CSV content.
	Files map[string]string
	// JobPolls is how many polls report RUNNING before a job finishes.
	JobPolls int
	// FailJobs makes every job end FAILED with this exception when non-empty.
	FailJobs string
	// Healthy is reported by /3/Cloud.
	Healthy bool
	// FreeMem is the free memory reported for the single node.
	FreeMem int64
	// Models builds model output; DefaultModel when nil.
	Models ModelFactory

	mu       sync.Mutex
	frames   map[string]*Frame
	models   map[string]map[string]interface{}
	jobs     map[string]*job
	asts     []string
	requests []string
	builds   map[string]url.Values
	seq      int
	sessions int
}

type job struct {
	key, desc, dest string
	polls           int
	status          string
	exception       string
	warnings        []string
}

// NewServer starts a fake engine. Call Close when done.
func NewServer() *Server {
	s := &Server{
		Files:   map[string]string{},
		Healthy: true,
		FreeMem: 4 << 30,
		frames:  map[string]*Frame{},
		models:  map[string]map[string]interface{}{},
		jobs:    map[string]*job{},
		builds:  map[string]url.Values{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /3/Cloud", s.handleCloud)
	mux.HandleFunc("POST /4/sessions", s.handleSession)
	mux.HandleFunc("DELETE /4/sessions/{id}", s.handleEndSession)
	mux.HandleFunc("DELETE /3/DKV", s.handleRemoveAll)
	mux.HandleFunc("GET /3/ImportFiles", s.handleImport)
	mux.HandleFunc("POST /3/ParseSetup", s.handleParseSetup)
	mux.HandleFunc("POST /3/Parse", s.handleParse)
	mux.HandleFunc("GET /3/Jobs/{key}", s.handleJob)
	mux.HandleFunc("GET /3/Frames/{key}/summary", s.handleSummary)
	mux.HandleFunc("DELETE /3/Frames/{key}", s.handleDeleteFrame)
	mux.HandleFunc("GET /3/DownloadDataset", s.handleDownload)
	mux.HandleFunc("POST /99/Rapids", s.handleRapids)
	mux.HandleFunc("POST /3/Interaction", s.handleInteraction)
	mux.HandleFunc("POST /3/ModelBuilders/{algo}", s.handleBuild)
	mux.HandleFunc("GET /3/Models/{key}", s.handleModel)

	s.Server = httptest.NewServer(s.record(mux))
	return s
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// PutFrame stores a frame directly.
func (s *Server) PutFrame(key string, f *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[key] = f
}

// Frame returns a stored frame, or nil.
func (s *Server) Frame(key string) *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[key]
}

// FrameKeys returns the sorted keys of all stored frames.
func (s *Server) FrameKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.frames))
	for k := range s.frames {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Asts returns every Rapids expression received, in order.
func (s *Server) Asts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.asts...)
}

// Requests returns every "METHOD /path" received, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.requests...)
}

// BuildParams returns the parameters a model was built with.
func (s *Server) BuildParams(modelID string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builds[modelID]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, status, map[string]interface{}{
		"http_status":   status,
		"msg":           msg,
		"exception_msg": msg,
	})
}

func key(name string) map[string]string {
	return map[string]string{"name": name}
}

// newJob registers a job. Must hold s.mu.
func (s *Server) newJob(desc, dest string) *job {
	s.seq++
	j := &job{
		key:    fmt.Sprintf("$0301job_%d", s.seq),
		desc:   desc,
		dest:   dest,
		polls:  s.JobPolls,
		status: "DONE",
	}
	if s.FailJobs != "" {
		j.status = "FAILED"
		j.exception = s.FailJobs
	}
	s.jobs[j.key] = j
	return j
}

func (j *job) json(status string) map[string]interface{} {
	progress := 1.0
	if status == "RUNNING" {
		progress = 0.5
	}
	return map[string]interface{}{
		"key":         key(j.key),
		"description": j.desc,
		"status":      status,
		"progress":    progress,
		"exception":   j.exception,
		"warnings":    j.warnings,
		"dest":        key(j.dest),
	}
}

func (s *Server) handleCloud(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cloud_name":    "fake",
		"version":       "3.46.0.fake",
		"cloud_size":    1,
		"cloud_healthy": s.Healthy,
		"consensus":     true,
		"nodes": []map[string]interface{}{{
			"h2o":      "127.0.0.1:54321",
			"healthy":  s.Healthy,
			"free_mem": s.FreeMem,
			"max_mem":  s.FreeMem,
			"num_cpus": 4,
		}},
	})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.sessions++
	id := fmt.Sprintf("_sid_%d", s.sessions)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"session_key": id})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"session_key": r.PathValue("id")})
}

func (s *Server) handleRemoveAll(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.frames = map[string]*Frame{}
	s.models = map[string]map[string]interface{}{}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if _, ok := s.Files[path]; !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"files": []string{}, "destination_frames": []string{}, "fails": []string{path},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"files":              []string{path},
		"destination_frames": []string{"nfs:/" + path},
		"fails":              []string{},
	})
}

func sourcePath(r *http.Request) (string, error) {
	var sources []string
	if err := json.Unmarshal([]byte(r.PostFormValue("source_frames")), &sources); err != nil || len(sources) != 1 {
		return "", fmt.Errorf("bad source_frames %q", r.PostFormValue("source_frames"))
	}
	return strings.TrimPrefix(sources[0], "nfs:/"), nil
}

func (s *Server) parseFile(r *http.Request) (*Frame, error) {
	path, err := sourcePath(r)
	if err != nil {
		return nil, err
	}
	content, ok := s.Files[path]
	if !ok {
		return nil, fmt.Errorf("file %q not imported", path)
	}
	return ParseCSV(strings.NewReader(content))
}

func (s *Server) handleParseSetup(w http.ResponseWriter, r *http.Request) {
	fr, err := s.parseFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	types := make([]string, len(fr.Cols))
	for i, c := range fr.Cols {
		types[i] = "Numeric"
		if !c.Numeric() {
			types[i] = "Enum"
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"destination_frame": "parsed.hex",
		"parse_type":        "CSV",
		"separator":         44,
		"number_columns":    len(fr.Cols),
		"single_quotes":     false,
		"column_names":      fr.Names(),
		"column_types":      types,
		"check_header":      1,
		"chunk_size":        4194304,
	})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	fr, err := s.parseFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if r.PostFormValue("parse_type") != "CSV" || r.PostFormValue("column_names") == "" {
		writeError(w, http.StatusBadRequest, "parse setup fields were not forwarded")
		return
	}
	dest := r.PostFormValue("destination_frame")

	s.mu.Lock()
	s.frames[dest] = fr
	j := s.newJob("Parse", dest)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job":               j.json("RUNNING"),
		"destination_frame": key(dest),
	})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	j, ok := s.jobs[r.PathValue("key")]
	var body map[string]interface{}
	if ok {
		status := j.status
		if j.polls > 0 {
			j.polls--
			status = "RUNNING"
		}
		body = j.json(status)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "job %s not found", r.PathValue("key"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": []interface{}{body}})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	k := r.PathValue("key")
	fr := s.Frame(k)
	if fr == nil {
		writeError(w, http.StatusNotFound, "Object '%s' not found", k)
		return
	}
	cols := make([]interface{}, len(fr.Cols))
	for i, c := range fr.Cols {
		cols[i] = c.summary()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"frames": []interface{}{map[string]interface{}{
			"frame_id":    key(k),
			"rows":        fr.Rows(),
			"num_columns": len(fr.Cols),
			"columns":     cols,
		}},
	})
}

func (s *Server) handleDeleteFrame(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.frames, r.PathValue("key"))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	k := r.URL.Query().Get("frame_id")
	fr := s.Frame(k)
	if fr == nil {
		writeError(w, http.StatusNotFound, "Object '%s' not found", k)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	_ = fr.WriteCSV(w)
}

func (s *Server) handleRapids(w http.ResponseWriter, r *http.Request) {
	ast := r.PostFormValue("ast")
	if r.PostFormValue("session_id") == "" {
		writeError(w, http.StatusBadRequest, "missing session_id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.asts = append(s.asts, ast)

	n, err := parseRapids(ast)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Rapids parse error: %v", err)
		return
	}
	v, err := s.eval(n)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	switch {
	case v.frame != nil:
		k := v.key
		if k == "" {
			s.seq++
			k = fmt.Sprintf("py_tmp_%d", s.seq)
			s.frames[k] = v.frame
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"key":      key(k),
			"num_rows": v.frame.Rows(),
			"num_cols": len(v.frame.Cols),
		})
	case v.isStr:
		writeJSON(w, http.StatusOK, map[string]interface{}{"string": v.str})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"scalar": v.num})
	}
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var factors []string
	if err := json.Unmarshal([]byte(r.PostFormValue("factor_columns")), &factors); err != nil {
		writeError(w, http.StatusBadRequest, "bad factor_columns: %v", err)
		return
	}
	maxFactors, _ := strconv.Atoi(r.PostFormValue("max_factors"))
	minOcc, _ := strconv.Atoi(r.PostFormValue("min_occurrence"))
	pairwise := r.PostFormValue("pairwise") == "true"
	dest := r.PostFormValue("dest")

	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.frames[r.PostFormValue("source_frame")]
	if !ok {
		writeError(w, http.StatusNotFound, "Object '%s' not found", r.PostFormValue("source_frame"))
		return
	}
	cols := make([]*Column, len(factors))
	for i, name := range factors {
		cols[i] = src.Col(name)
		if cols[i] == nil || cols[i].Numeric() {
			writeError(w, http.StatusBadRequest, "column %q is not categorical", name)
			return
		}
	}

	var groups [][]*Column
	if pairwise {
		for i := 0; i < len(cols); i++ {
			for j := i + 1; j < len(cols); j++ {
				groups = append(groups, []*Column{cols[i], cols[j]})
			}
		}
	} else {
		groups = [][]*Column{cols}
	}

	out := &Frame{}
	for _, g := range groups {
		out.Cols = append(out.Cols, interact(g, maxFactors, minOcc))
	}
	s.frames[dest] = out

	j := s.newJob("Interaction", dest)
	writeJSON(w, http.StatusOK, j.json("RUNNING"))
}

// interact combines factor columns. Levels seen fewer than minOcc times, or
// beyond the maxFactors most frequent, become "other".
func interact(cols []*Column, maxFactors, minOcc int) *Column {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	n := cols[0].Len()
	raw := make([]string, n)
	counts := map[string]int{}
	for r := 0; r < n; r++ {
		parts := make([]string, len(cols))
		missing := false
		for i, c := range cols {
			parts[i] = c.Str[r]
			missing = missing || parts[i] == ""
		}
		if missing {
			continue
		}
		raw[r] = strings.Join(parts, "_")
		counts[raw[r]]++
	}

	levels := make([]string, 0, len(counts))
	for l, c := range counts {
		if c >= minOcc {
			levels = append(levels, l)
		}
	}
	sort.Slice(levels, func(i, j int) bool {
		if counts[levels[i]] != counts[levels[j]] {
			return counts[levels[i]] > counts[levels[j]]
		}
		return levels[i] < levels[j]
	})
	if maxFactors > 0 && len(levels) > maxFactors {
		levels = levels[:maxFactors]
	}
	keep := map[string]bool{}
	for _, l := range levels {
		keep[l] = true
	}

	out := &Column{Name: strings.Join(names, "_"), Str: make([]string, n), Factor: true}
	for r, v := range raw {
		switch {
		case v == "":
		case keep[v]:
			out.Str[r] = v
		default:
			out.Str[r] = "other"
		}
	}
	return out
}

func builderError(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusPreconditionFailed, map[string]interface{}{
		"error_count": 1,
		"messages": []map[string]string{{
			"message_type": "ERRR",
			"field_name":   field,
			"message":      msg,
		}},
	})
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	params := r.PostForm

	s.mu.Lock()
	defer s.mu.Unlock()

	train, ok := s.frames[params.Get("training_frame")]
	if !ok {
		builderError(w, "training_frame", "Training frame not found: "+params.Get("training_frame"))
		return
	}
	var valid *Frame
	if v := params.Get("validation_frame"); v != "" {
		if valid, ok = s.frames[v]; !ok {
			builderError(w, "validation_frame", "Validation frame not found: "+v)
			return
		}
	}
	y := params.Get("response_column")
	if train.Col(y) == nil {
		builderError(w, "response_column", "Response column '"+y+"' not found in the training frame")
		return
	}
	if lambda := params.Get("lambda"); lambda != "" {
		if v, err := strconv.ParseFloat(strings.Trim(lambda, "[]"), 64); err != nil || v < 0 {
			builderError(w, "lambda", "lambda must be a non-negative number")
			return
		}
	}

	id := params.Get("model_id")
	if id == "" {
		s.seq++
		id = fmt.Sprintf("GLM_model_%d", s.seq)
	}
	factory := s.Models
	if factory == nil {
		factory = DefaultModel
	}
	s.models[id] = map[string]interface{}{
		"model_id": key(id),
		"algo":     r.PathValue("algo"),
		"output":   factory(params, train, valid),
	}
	s.builds[id] = params

	j := s.newJob(r.PathValue("algo")+" model build", id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job":         j.json("RUNNING"),
		"messages":    []interface{}{},
		"error_count": 0,
	})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	m, ok := s.models[r.PathValue("key")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Object '%s' not found", r.PathValue("key"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": []interface{}{m}})
}
