package restserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/chrissnell/energymonitor/internal/storage"
	"github.com/chrissnell/energymonitor/pkg/responseformat"
	"github.com/gorilla/mux"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// GetZones lists the zones a client may pick from
func (h *Handlers) GetZones(w http.ResponseWriter, req *http.Request) {
	zones := make([]ZoneResponse, len(h.controller.zones))
	for i, z := range h.controller.zones {
		zones[i] = ZoneResponse{Name: z.Name, Label: z.Label}
	}
	h.write(w, req, http.StatusOK, map[string]any{"zones": zones})
}

// GetProjects lists a user's project names
func (h *Handlers) GetProjects(w http.ResponseWriter, req *http.Request) {
	user := mux.Vars(req)["user"]

	names, err := h.controller.store.ListProjects(req.Context(), user)
	if err != nil {
		h.storageError(w, req, err, "User or projects not found")
		return
	}

	h.write(w, req, http.StatusOK, map[string]any{"projectNames": names})
}

type addProjectRequest struct {
	ProjectName string `json:"projectName"`
}

// AddProject creates an empty project for a user
func (h *Handlers) AddProject(w http.ResponseWriter, req *http.Request) {
	user := mux.Vars(req)["user"]

	var body addProjectRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || strings.TrimSpace(body.ProjectName) == "" {
		h.message(w, req, http.StatusBadRequest, "Project name is required")
		return
	}

	added, err := h.controller.store.AddProject(req.Context(), user, body.ProjectName)
	if err != nil {
		h.storageError(w, req, err, "User not found")
		return
	}

	if added {
		h.message(w, req, http.StatusCreated, `Project "`+body.ProjectName+`" added successfully`)
		return
	}
	h.message(w, req, http.StatusOK, `Project "`+body.ProjectName+`" already exists`)
}

// GetProjectRuns returns the runs of a project
func (h *Handlers) GetProjectRuns(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)

	runs, err := h.controller.store.GetRuns(req.Context(), vars["user"], vars["project"])
	if err != nil {
		h.storageError(w, req, err, "Project not found")
		return
	}

	out := make([]RunResponse, len(runs))
	for i, r := range runs {
		out[i] = transformRun(r)
	}
	h.write(w, req, http.StatusOK, map[string]any{"runs": out})
}

// AddRun stores a run reported by an energy-monitoring session. The body is
// the raw run document plus an optional "run" name.
func (h *Handlers) AddRun(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)

	var fields map[string]any
	dec := json.NewDecoder(req.Body)
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		h.message(w, req, http.StatusBadRequest, "Request body must be a JSON object")
		return
	}

	runName, _ := fields["run"].(string)
	delete(fields, "run")

	name, err := h.controller.store.SaveRun(req.Context(), vars["user"], vars["project"], runName, fields)
	if err != nil {
		h.storageError(w, req, err, "Project not found")
		return
	}

	h.write(w, req, http.StatusCreated, map[string]any{
		"message": "Run stored",
		"run":     name,
	})
}

// GetAllProjectAverages returns the averages of every project of a user
func (h *Handlers) GetAllProjectAverages(w http.ResponseWriter, req *http.Request) {
	user := mux.Vars(req)["user"]

	projects, err := h.controller.store.GetAllProjects(req.Context(), user)
	if err != nil {
		h.storageError(w, req, err, "User or projects not found")
		return
	}

	averages := h.controller.engine.AllProjectAverages(projects)
	out := make([]AveragesResponse, len(averages))
	for i, a := range averages {
		out[i] = transformAverages(a)
	}
	h.write(w, req, http.StatusOK, map[string]any{"averages": out})
}

// GetProjectAverages returns the averages of a single project
func (h *Handlers) GetProjectAverages(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)

	runs, err := h.controller.store.GetRuns(req.Context(), vars["user"], vars["project"])
	if err != nil {
		h.storageError(w, req, err, "Project not found")
		return
	}

	h.write(w, req, http.StatusOK, transformAverages(h.controller.engine.ProjectAverages(vars["project"], runs)))
}

// GetCarbon correlates a project's runs with the zone given in ?zone=. With
// ?run= it returns that run's snapshot, otherwise one snapshot per run.
func (h *Handlers) GetCarbon(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	zone := req.URL.Query().Get("zone")
	runName := req.URL.Query().Get("run")

	if zone != "" && !h.controller.zoneSet[zone] {
		h.message(w, req, http.StatusBadRequest, "Unsupported zone: "+zone)
		return
	}

	runs, err := h.controller.store.GetRuns(req.Context(), vars["user"], vars["project"])
	if err != nil {
		h.storageError(w, req, err, "Project not found")
		return
	}

	if runName != "" {
		h.write(w, req, http.StatusOK, transformSnapshot(h.controller.engine.CorrelateRun(runs, runName, zone)))
		return
	}

	snaps := h.controller.engine.CorrelateRuns(runs, zone)
	out := make([]SnapshotResponse, len(snaps))
	for i, s := range snaps {
		out[i] = transformSnapshot(s)
	}
	h.write(w, req, http.StatusOK, map[string]any{"snapshots": out})
}

func (h *Handlers) storageError(w http.ResponseWriter, req *http.Request, err error, notFoundMsg string) {
	if errors.Is(err, storage.ErrNotFound) {
		h.message(w, req, http.StatusNotFound, notFoundMsg)
		return
	}
	h.controller.logger.Errorf("storage error serving %s: %v", req.URL.Path, err)
	h.message(w, req, http.StatusInternalServerError, "Internal server error")
}

func (h *Handlers) message(w http.ResponseWriter, req *http.Request, status int, msg string) {
	if err := h.formatter.WriteMessage(w, req, status, msg); err != nil {
		h.controller.logger.Errorf("error writing response: %v", err)
	}
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := h.formatter.WriteResponse(w, req, status, data); err != nil {
		h.controller.logger.Errorf("error writing response: %v", err)
	}
}
