package api

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/zombor/pantry-tracker/internal/pantry"
	"github.com/zombor/pantry-tracker/internal/receipt"
)

// handleListPantry returns pantry entries matching the query
func (s *Server) handleListPantry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := pantry.Filter{
		Category: q.Get("category"),
		Query:    q.Get("q"),
	}
	if v := q.Get("frozen"); v != "" {
		frozen, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, "Invalid frozen value", http.StatusBadRequest)
			return
		}
		filter.Frozen = &frozen
	}
	if v := q.Get("include_empty"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, "Invalid include_empty value", http.StatusBadRequest)
			return
		}
		filter.IncludeEmpty = include
	}
	if v := q.Get("expiring_before"); v != "" {
		d, err := receipt.ParseDate(v)
		if err != nil {
			jsonError(w, "Invalid expiring_before date", http.StatusBadRequest)
			return
		}
		filter.ExpiringBefore = &d
	}

	entries, err := s.services.Pantry.List(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleSetFrozen sets or clears the frozen flag of an entry
func (s *Server) handleSetFrozen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Frozen bool `json:"frozen"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	entry, err := s.services.Pantry.SetFrozen(r.PathValue("key"), req.Frozen)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleSetExpiry records a manual expiration date
func (s *Server) handleSetExpiry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpiresOn string `json:"expires_on"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := receipt.ParseDate(req.ExpiresOn)
	if err != nil {
		jsonError(w, "Invalid expires_on date", http.StatusBadRequest)
		return
	}

	entry, err := s.services.Pantry.SetExpiry(r.PathValue("key"), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleConsume removes a used amount from an entry
func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity decimal.Decimal `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	entry, err := s.services.Pantry.Consume(r.PathValue("key"), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
