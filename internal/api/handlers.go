package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/splits-indexer/internal/accountid"
	"github.com/splits-indexer/internal/logging"
	"github.com/splits-indexer/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathAccountID(r *http.Request) (accountid.AccountID, bool) {
	id, err := accountid.FromDecimal(mux.Vars(r)["id"])
	if err != nil {
		return accountid.AccountID{}, false
	}
	return id, true
}

// handleGetAccount resolves an account ID to its entity variant and row
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := pathAccountID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account ID")
		return
	}

	variant, err := s.resolver.ResolveVariant(ctx, s.db.Pool(), account.String())
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("Account resolution failed")
		writeError(w, http.StatusInternalServerError, "resolution failed")
		return
	}

	var entity interface{}
	switch variant {
	case storage.VariantProject:
		entity, err = s.projects.Get(ctx, s.db.Pool(), account.String())
	case storage.VariantDripList:
		entity, err = s.dripLists.Get(ctx, s.db.Pool(), account.String())
	case storage.VariantEcosystem:
		entity, err = s.ecosystems.Get(ctx, s.db.Pool(), account.String())
	case storage.VariantSubList:
		entity, err = s.subLists.Get(ctx, s.db.Pool(), account.String())
	case storage.VariantLinkedIdentity:
		entity, err = s.identities.Get(ctx, s.db.Pool(), account.String())
	default:
		// Deadline accounts live outside the resolver's variant set.
		deadline, derr := s.deadlines.Get(ctx, s.db.Pool(), account.String())
		if derr != nil {
			err = derr
		} else if deadline != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"driver": account.Driver().String(),
				"entity": deadline,
			})
			return
		} else {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
	}
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("Account lookup failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"driver":  account.Driver().String(),
		"variant": string(variant),
		"entity":  entity,
	})
}

// handleGetReceivers returns the stored outgoing edges of a sender
func (s *Server) handleGetReceivers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := pathAccountID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account ID")
		return
	}

	edges, err := s.receivers.ReceiversFor(ctx, s.db.Pool(), account.String())
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("Receiver lookup failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accountId": account.String(),
		"receivers": edges,
	})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := pathAccountID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account ID")
		return
	}
	if err := account.AssertProject(); err != nil {
		writeError(w, http.StatusBadRequest, "not a project account ID")
		return
	}

	project, err := s.projects.Get(ctx, s.db.Pool(), account.String())
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("Project lookup failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if project == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleGetDripList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := pathAccountID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account ID")
		return
	}
	if err := account.AssertDripList(); err != nil {
		writeError(w, http.StatusBadRequest, "not a drip-list account ID")
		return
	}

	list, err := s.dripLists.Get(ctx, s.db.Pool(), account.String())
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("Drip list lookup failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if list == nil {
		writeError(w, http.StatusNotFound, "drip list not found")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetDeadline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := pathAccountID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account ID")
		return
	}
	if err := account.AssertDeadline(); err != nil {
		writeError(w, http.StatusBadRequest, "not a deadline account ID")
		return
	}

	deadline, err := s.deadlines.Get(ctx, s.db.Pool(), account.String())
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("Deadline lookup failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if deadline == nil {
		writeError(w, http.StatusNotFound, "deadline not found")
		return
	}
	writeJSON(w, http.StatusOK, deadline)
}
