package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/health"
)

func (s *Server) listModules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Modules().Get())
}

func (s *Server) registerModule(w http.ResponseWriter, r *http.Request) {
	var data blueprint.CreateModuleData
	if !decode(w, r, &data) {
		return
	}
	desc, err := s.manager.RegisterModule(r.Context(), data)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, desc)
}

func (s *Server) deleteModule(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteModule(r.Context(), chi.URLParam(r, "moduleID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) enableModule(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.EnableModule(r.Context(), chi.URLParam(r, "moduleID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) disableModule(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DisableModule(r.Context(), chi.URLParam(r, "moduleID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg blueprint.ModuleConfig
	if !decode(w, r, &cfg) {
		return
	}
	if err := s.manager.UpdateModuleConfig(r.Context(), chi.URLParam(r, "moduleID"), cfg); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchRequest struct {
	IDs     []string `json:"ids"`
	Enabled bool     `json:"enabled"`
}

func (s *Server) batchEnabled(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := s.manager.BatchUpdateEnabled(r.Context(), req.IDs, req.Enabled)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type activationResponse struct {
	Running []string          `json:"running"`
	Failed  map[string]string `json:"failed"`
	Skipped []string          `json:"skipped"`
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.Activate(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := activationResponse{Running: report.Running, Failed: make(map[string]string, len(report.Failed)), Skipped: report.Skipped}
	for id, err := range report.Failed {
		resp.Failed[id] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Deactivate(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) activateModule(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.ActivateModule(r.Context(), chi.URLParam(r, "moduleID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deactivateModule(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeactivateModule(r.Context(), chi.URLParam(r, "moduleID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := s.aggregator.CheckAll(r.Context())
	code := http.StatusOK
	if status.OverallStatus == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
