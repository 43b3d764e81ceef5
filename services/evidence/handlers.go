package evidence

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type uploadRequest struct {
	Action struct {
		Name string `json:"name"`
	} `json:"action"`
	Input struct {
		Data struct {
			Filename    string `json:"filename"`
			Base64Data  string `json:"base64_data"`
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"data"`
	} `json:"input"`
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("failed to parse request: %w", err))
		return
	}

	data := req.Input.Data
	data.Filename = strings.TrimSpace(data.Filename)
	if data.Filename == "" {
		respondError(w, http.StatusBadRequest, errors.New("filename is required"))
		return
	}
	if data.Base64Data == "" {
		respondError(w, http.StatusBadRequest, errors.New("base64_data is required"))
		return
	}

	content, err := base64.StdEncoding.DecodeString(data.Base64Data)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("decode base64_data: %w", err))
		return
	}
	if int64(len(content)) > a.cfg.MaxUploadSize {
		respondError(w, http.StatusRequestEntityTooLarge,
			fmt.Errorf("file exceeds maximum upload size of %d bytes", a.cfg.MaxUploadSize))
		return
	}

	a.logger.Printf("INFO scanning upload %q (%d bytes)", data.Filename, len(content))

	result, err := a.pipeline.Upload(r.Context(), Upload{
		Filename:    data.Filename,
		Content:     content,
		Name:        data.Name,
		Description: data.Description,
	})
	if err != nil {
		// The failure kind stays in the logs; callers get a generic fault.
		a.logger.Printf("ERROR upload of %q failed: %v", data.Filename, err)
		respondError(w, http.StatusInternalServerError, errors.New("upload failed"))
		return
	}

	if result.Rejected {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": result.Reason})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"evidence_id": result.EvidenceID})
}

func (a *API) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "evidenceID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid evidence id is required"))
		return
	}

	ev, err := a.repo.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respondError(w, http.StatusNotFound, fmt.Errorf("evidence %s not found", id))
			return
		}
		a.logger.Printf("ERROR fetch evidence %s failed: %v", id, err)
		respondError(w, http.StatusInternalServerError, errors.New("fetch failed"))
		return
	}

	respondJSON(w, http.StatusOK, ev)
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "evidenceID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid evidence id is required"))
		return
	}

	ttl := a.cfg.PresignTTL
	if raw := strings.TrimSpace(r.URL.Query().Get("ttl")); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			respondError(w, http.StatusBadRequest, errors.New("invalid ttl"))
			return
		}
		if seconds > maxPresignTTLSeconds {
			seconds = maxPresignTTLSeconds
		}
		ttl = time.Duration(seconds) * time.Second
	}

	ev, err := a.repo.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respondError(w, http.StatusNotFound, fmt.Errorf("evidence %s not found", id))
			return
		}
		a.logger.Printf("ERROR fetch evidence %s failed: %v", id, err)
		respondError(w, http.StatusInternalServerError, errors.New("fetch failed"))
		return
	}

	url, err := a.objects.PresignGet(r.Context(), a.cfg.ScannedBucket, ev.S3Key, ttl)
	if err != nil {
		a.logger.Printf("ERROR presign %s/%s failed: %v", a.cfg.ScannedBucket, ev.S3Key, err)
		respondError(w, http.StatusInternalServerError, errors.New("presign failed"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (a *API) handleHC(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessProbeTimeout)
	defer cancel()

	for _, check := range a.checks {
		if err := check(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
