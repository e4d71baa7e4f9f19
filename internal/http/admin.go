package httpadmin

import (
	"encoding/json"
	"net/http"
)

type Rescanner interface {
	Rescan() error
}

type Server struct {
	rs Rescanner
}

func New(rs Rescanner) *Server { return &Server{rs: rs} }

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/admin/rescan", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := s.rs.Rescan(); err != nil {
			http.Error(w, "rescan failed: "+err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "queued": true})
	})
}
