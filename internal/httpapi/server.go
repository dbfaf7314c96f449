// Package httpapi exposes the key-value operations over HTTP:
//
//	POST   /kv        create or update (JSON or form body)
//	GET    /kv/{key}  read, falling back to the store on cache miss
//	DELETE /kv/{key}  delete from store, invalidate cache
//	GET    /metrics   cache counters
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"goflare.io/hearth/internal/coordinator"
)

// maxBodySize bounds POST bodies, matching the original transport's
// 10 MiB limit.
const maxBodySize = 10 << 20

// Service is the coordinator surface the handlers consume.
type Service interface {
	Get(ctx context.Context, key string) coordinator.GetResult
	Put(ctx context.Context, key string, value []byte) coordinator.PutResult
	Delete(ctx context.Context, key string) coordinator.DeleteResult
	Stats(ctx context.Context) coordinator.Stats
}

type server struct {
	service Service
	logger  *zap.Logger
}

// NewHandler builds the route table over service.
func NewHandler(service Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{service: service, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /kv", s.handlePut)
	mux.HandleFunc("POST /kv/{$}", s.handlePut)
	mux.HandleFunc("GET /kv/{key}", s.handleGet)
	mux.HandleFunc("DELETE /kv/{key}", s.handleDelete)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	return mux
}

type putRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *server) handlePut(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req putRequest
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		req.Key = r.PostForm.Get("key")
		req.Value = r.PostForm.Get("value")
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return
	}

	res := s.service.Put(r.Context(), req.Key, []byte(req.Value))
	switch res.Outcome {
	case coordinator.PutOK:
		writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
	case coordinator.PutStoreError:
		s.logger.Error("put failed", zap.String("key", req.Key), zap.Error(res.Err))
		writeError(w, http.StatusBadGateway, "store unavailable")
	}
}

type getResponse struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	res := s.service.Get(r.Context(), key)
	switch res.Outcome {
	case coordinator.GetHit:
		source := "store"
		if res.Source == coordinator.SourceCache {
			source = "cache"
		}
		writeJSON(w, http.StatusOK, getResponse{Key: key, Value: string(res.Value), Source: source})
	case coordinator.GetMiss:
		writeError(w, http.StatusNotFound, "not found")
	case coordinator.GetStoreError:
		s.logger.Error("get failed", zap.String("key", key), zap.Error(res.Err))
		writeError(w, http.StatusBadGateway, "store unavailable")
	}
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	res := s.service.Delete(r.Context(), key)
	switch res.Outcome {
	case coordinator.DeleteOK:
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	case coordinator.DeleteNotFound:
		writeError(w, http.StatusNotFound, "not found")
	case coordinator.DeleteStoreError:
		s.logger.Error("delete failed", zap.String("key", key), zap.Error(res.Err))
		writeError(w, http.StatusBadGateway, "store unavailable")
	}
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Stats(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encode failure has nowhere to go.
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
