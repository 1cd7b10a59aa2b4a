package api

import (
	"net/http"

	"gangs/internal/gang"

	"github.com/google/uuid"
)

func (s *Server) handlePerks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"perks": gang.Perks(), "ranks": rankTable()})
}

func rankTable() []map[string]any {
	out := make([]map[string]any, 0, 4)
	for _, r := range gang.Ranks() {
		out = append(out, map[string]any{
			"rank":           r.String(),
			"priority":       r.Priority(),
			"fee_multiplier": r.FeeMultiplier(),
			"can_invite":     r.CanInvite(),
			"can_kick":       r.CanKick(),
			"can_claim":      r.CanClaim(),
			"can_perks":      r.CanManagePerks(),
			"can_disband":    r.CanDisband(),
		})
	}
	return out
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"gangs": s.gangs.List()})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Name  string `json:"name"`
		Tag   string `json:"tag"`
		Color string `json:"color"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := s.gangs.CreateGang(player, in.Name, in.Tag, in.Color)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	g, err := s.gangs.Resolve(urlParam(r, "ref"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.View())
}

func (s *Server) handleMyGang(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	g, ok := s.gangs.GangOf(player)
	if !ok {
		writeDomainError(w, gang.ErrNotInGang)
		return
	}
	writeJSON(w, http.StatusOK, g.View())
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	g, err := s.gangs.Resolve(urlParam(r, "ref"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.gangs.JoinGang(player, g.ID()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g.View())
}

type targetInput struct {
	Player string `json:"player"`
	Rank   string `json:"rank,omitempty"`
}

func (s *Server) decodeTarget(w http.ResponseWriter, r *http.Request) (uuid.UUID, targetInput, bool) {
	var in targetInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return uuid.Nil, in, false
	}
	target, err := uuid.Parse(in.Player)
	if err != nil {
		writeDomainError(w, gang.ErrInvalidPlayer)
		return uuid.Nil, in, false
	}
	return target, in, true
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	target, _, ok := s.decodeTarget(w, r)
	if !ok {
		return
	}
	if err := s.gangs.InvitePlayer(player, target); err != nil {
		writeDomainError(w, err)
		return
	}
	g, ok := s.gangs.GangOf(player)
	if !ok {
		writeDomainError(w, gang.ErrNotInGang)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"gang_id":    g.ID(),
		"player":     target,
		"expires_in": gang.InviteTTL.String(),
	})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	disbanded, err := s.gangs.LeaveGang(player)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"left": true, "disbanded": disbanded})
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	target, _, ok := s.decodeTarget(w, r)
	if !ok {
		return
	}
	if err := s.gangs.KickMember(player, target); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kicked": target})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	target, in, ok := s.decodeTarget(w, r)
	if !ok {
		return
	}
	rank, err := gang.ParseRank(in.Rank)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.gangs.PromoteMember(player, target, rank); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player": target, "rank": rank})
}

func (s *Server) handleDisband(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.gangs.DisbandGang(player); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disbanded": true})
}

func (s *Server) handleUnlockPerk(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Perk string `json:"perk"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.gangs.UnlockPerk(player, in.Perk); err != nil {
		writeDomainError(w, err)
		return
	}
	g, ok := s.gangs.GangOf(player)
	if !ok {
		writeDomainError(w, gang.ErrNotInGang)
		return
	}
	writeJSON(w, http.StatusOK, g.View())
}

func (s *Server) handleFee(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Fee int64 `json:"fee"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.gangs.SetWeeklyFee(player, in.Fee); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"weekly_fee": in.Fee})
}

func (s *Server) handleColor(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Color string `json:"color"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.gangs.SetColor(player, in.Color); err != nil {
		writeDomainError(w, err)
		return
	}
	g, ok := s.gangs.GangOf(player)
	if !ok {
		writeDomainError(w, gang.ErrNotInGang)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"color": g.Color()})
}

type amountInput struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleAddXP(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in amountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	leveled, err := s.gangs.AddXP(player, in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	g, ok := s.gangs.GangOf(player)
	if !ok {
		writeDomainError(w, gang.ErrNotInGang)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leveled_up": leveled, "level": g.Level(), "xp": g.XP()})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in amountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.gangs.DepositToTreasury(r.Context(), player, in.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	g, ok := s.gangs.GangOf(player)
	if !ok {
		writeDomainError(w, gang.ErrNotInGang)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": g.Balance()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in amountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.gangs.WithdrawFromTreasury(r.Context(), player, in.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	g, ok := s.gangs.GangOf(player)
	if !ok {
		writeDomainError(w, gang.ErrNotInGang)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": g.Balance()})
}

func (s *Server) decodeChunk(w http.ResponseWriter, r *http.Request) (gang.ChunkKey, bool) {
	var in struct {
		Chunk string `json:"chunk"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	key, err := gang.ParseChunkKey(in.Chunk)
	if err != nil {
		writeDomainError(w, err)
		return 0, false
	}
	return key, true
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	key, ok := s.decodeChunk(w, r)
	if !ok {
		return
	}
	if err := s.gangs.ClaimTerritory(player, key); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"chunk": key.String()})
}

func (s *Server) handleUnclaim(w http.ResponseWriter, r *http.Request) {
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	key, ok := s.decodeChunk(w, r)
	if !ok {
		return
	}
	if err := s.gangs.UnclaimTerritory(player, key); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"released": key.String()})
}

func (s *Server) handleTerritoryOwner(w http.ResponseWriter, r *http.Request) {
	key, err := gang.ParseChunkKey(urlParam(r, "chunk"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	id, ok := s.gangs.TerritoryOwner(key)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"chunk": key.String(), "owned": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunk": key.String(), "owned": true, "gang_id": id})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live updates disabled")
		return
	}
	player, err := playerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.hub.Serve(w, r, player)
}
