package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/verforge/verforge/internal/cli/output"
	"github.com/verforge/verforge/internal/engine"
	"github.com/verforge/verforge/internal/state"
)

const defaultRunsLimit = 20

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error  string   `json:"error"`
	Errors []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// handleTargets lists the registry. ?enabled=true limits it to enabled targets.
func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	enabledOnly, _ := strconv.ParseBool(r.URL.Query().Get("enabled"))
	res := output.NewTargetsOutput(s.engine.Registry(), s.mapper, s.engine.Binder().OutputRoot, enabledOnly)
	writeJSON(w, http.StatusOK, res)
}

// handleCheck validates the shared tree without writing anything.
func (s *Server) handleCheck(w http.ResponseWriter, _ *http.Request) {
	src, err := s.engine.Load()
	writeJSON(w, http.StatusOK, output.NewCheckOutput(s.engine.Registry().Len(), src, err))
}

// handleExpand returns one shared file as a target sees it.
func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, file := q.Get("target"), q.Get("file")
	if id == "" || file == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("target and file are required"))
		return
	}
	if !filepath.IsLocal(filepath.FromSlash(file)) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%s is not inside the shared root", file))
		return
	}
	if _, ok := s.engine.Registry().Lookup(id); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown target %q", id))
		return
	}

	data, err := s.engine.ExpandFile(file, id)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, fmt.Errorf("file not found: %s", file))
		return
	case err != nil:
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

// handleResolve maps a plugin id. ?version= supplies the requested version.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, output.NewResolveOutput(s.mapper, id, r.URL.Query().Get("version")))
}

// handleBuild runs a build and waits for it. A build in which some targets
// failed is still a 200; the body's status says "failed".
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.Run(r.Context())
	s.record(sum, err)

	if sum == nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, engine.ErrNoTargets) {
			status = http.StatusConflict
		}
		resp := errorResponse{Error: err.Error()}
		if errs := output.SplitErrors(err); len(errs) > 1 {
			for _, e := range errs {
				resp.Errors = append(resp.Errors, e.Error())
			}
		}
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusOK, output.NewBuildOutput(sum))
}

// handleLatestBuild returns the last build this server ran.
func (s *Server) handleLatestBuild(w http.ResponseWriter, _ *http.Request) {
	last := s.lastBuild()
	if last == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no build yet"))
		return
	}
	writeJSON(w, http.StatusOK, last)
}

// handleRuns lists recorded runs, newest first. ?limit= bounds the list.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	res := output.HistoryOutput{Runs: make([]output.RunInfo, 0, len(runs))}
	for _, run := range runs {
		res.Runs = append(res.Runs, output.NewRunInfo(run, nil))
	}
	writeJSON(w, http.StatusOK, res)
}

// handleLatestRun returns the most recent recorded run with its targets.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetLatestRun(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no runs recorded"))
		return
	}
	s.writeRun(w, r, run)
}

// handleRun returns one recorded run with its targets.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, state.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeRun(w, r, run)
}

func (s *Server) writeRun(w http.ResponseWriter, r *http.Request, run *state.Run) {
	trs, err := s.store.ListTargetRuns(r.Context(), run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, output.NewRunInfo(run, trs))
}
