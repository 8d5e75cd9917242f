package api

import (
	"net/http"

	"github.com/zombor/pantry-tracker/internal/category"
)

// handleListCategories returns all categories in evaluation order
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.services.Categories.ListCategories()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// handleGetCategory returns one category
func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.services.Categories.GetCategory(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleCreateCategory saves a category from the request body
func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var c category.Category
	if !decodeBody(w, r, &c) {
		return
	}

	saved, err := s.services.Categories.UpsertCategory(c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// handlePutCategory replaces the category named in the path
func (s *Server) handlePutCategory(w http.ResponseWriter, r *http.Request) {
	var c category.Category
	if !decodeBody(w, r, &c) {
		return
	}
	c.ID = r.PathValue("id")

	saved, err := s.services.Categories.UpsertCategory(c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleDeleteCategory removes a category
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Categories.DeleteCategory(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
