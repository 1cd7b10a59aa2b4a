package api

import "net/http"

func (s *Server) handleAdminSetLevel(w http.ResponseWriter, r *http.Request) {
	g, err := s.gangs.Resolve(urlParam(r, "ref"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var in struct {
		Level int `json:"level"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	revoked, err := s.gangs.AdminSetLevel(g.ID(), in.Level)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"level": g.Level(), "xp": g.XP(), "revoked_perks": revoked})
}

func (s *Server) handleAdminAddXP(w http.ResponseWriter, r *http.Request) {
	g, err := s.gangs.Resolve(urlParam(r, "ref"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var in amountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	leveled, err := s.gangs.AdminAddXP(g.ID(), in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leveled_up": leveled, "level": g.Level(), "xp": g.XP()})
}

func (s *Server) handleAdminBilling(w http.ResponseWriter, r *http.Request) {
	rep := s.gangs.RunBillingSweep(r.Context())
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleAdminSave(w http.ResponseWriter, r *http.Request) {
	if s.save == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return
	}
	if err := s.save(r.Context()); err != nil {
		s.log.Error("admin save failed", "err", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": s.gangs.Len()})
}

func (s *Server) handleAdminConsistency(w http.ResponseWriter, _ *http.Request) {
	if err := s.gangs.CheckConsistency(); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
