package directory

import (
	"encoding/json"
	"net/http"

	"cardlink/internal/models"

	"github.com/gorilla/mux"
)

type HTTP struct{ repo *Repo }

func NewHTTP(r *Repo) *HTTP { return &HTTP{repo: r} }

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	// GET /api/v1/cards/{uid} — кто владелец карты (портал дергает после записи/свайпа)
	api.HandleFunc("/cards/{uid}", h.cardOwner).Methods(http.MethodGet)
}

func (h *HTTP) cardOwner(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]

	info, ok, err := h.repo.StudentByCardUID(uid)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Lookup failed", err.Error(), nil)
		return
	}
	if !ok {
		models.WriteProblem(w, http.StatusNotFound, "Not found", "no active card with this uid", map[string]string{"uid": uid})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		UID     string      `json:"uid"`
		Student StudentInfo `json:"student"`
	}{UID: uid, Student: info})
}
