package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/welthhq/welth/internal/api/middleware"
	"github.com/welthhq/welth/internal/seed"
)

// SeedHandler exposes the demo-data seeder. The route is unauthenticated so
// a fresh deployment can be populated with one request.
type SeedHandler struct {
	seeder *seed.Service
	log    zerolog.Logger
}

// NewSeedHandler creates the seed handler.
func NewSeedHandler(seeder *seed.Service, log zerolog.Logger) *SeedHandler {
	return &SeedHandler{seeder: seeder, log: log}
}

// Run handles GET /api/seed: regenerates the demo data set.
func (h *SeedHandler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.seeder.Run(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Seeding failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Seeding failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}
