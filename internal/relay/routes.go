package relay

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func Routes(h *Hub, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/stats", Stats(h))
	r.Get("/{session}/{identity}", Handler(h, opts))
	return r
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type stats struct {
	Channels int    `json:"channels"`
	Members  int    `json:"members"`
	Hosts    int    `json:"hosts"`
	Detail   []View `json:"detail,omitempty"`
}

// Stats reports channel occupancy. ?detail=1 includes per-channel views.
func Stats(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s stats
		for _, ch := range h.Channels(r.Context()) {
			v, err := ch.State(r.Context())
			if err != nil {
				continue
			}
			s.Channels++
			s.Members += len(v.Members)
			if v.Host {
				s.Hosts++
			}
			if r.URL.Query().Get("detail") != "" {
				s.Detail = append(s.Detail, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s)
	}
}
