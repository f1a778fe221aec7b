package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"miniapp-server/internal/domain"
	"miniapp-server/internal/providers/video"
	"miniapp-server/internal/workflow"
	"miniapp-server/pkg/bundle"
)

type sessionResponse struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Prompt    string    `json:"prompt,omitempty"`
	VideoID   string    `json:"video_id,omitempty"`
	FailStage string    `json:"fail_stage,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func sessionView(s domain.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		State:     string(s.State),
		Prompt:    s.Prompt,
		VideoID:   s.VideoID,
		FailStage: string(s.FailStage),
		LastError: s.LastError,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func (a *App) CreateSession(w http.ResponseWriter, r *http.Request) {
	flow, err := a.Flows.Create(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusCreated, sessionView(flow.Snapshot()))
}

func (a *App) GetSession(w http.ResponseWriter, r *http.Request) {
	flow, err := a.flow(w, r)
	if err != nil {
		return
	}
	a.json(w, http.StatusOK, sessionView(flow.Snapshot()))
}

type generateRequest struct {
	Prompt            string `json:"prompt"`
	NumFrames         int    `json:"num_frames"`
	NumInferenceSteps int    `json:"num_inference_steps"`
	Seed              int64  `json:"seed,omitempty"`
}

// Generate runs the inference call and streams the video back, with the
// server-assigned id in the response header.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	flow, err := a.flow(w, r)
	if err != nil {
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	result, err := flow.Generate(r.Context(), domain.GenerationRequest{
		Prompt:         req.Prompt,
		NumFrames:      req.NumFrames,
		InferenceSteps: req.NumInferenceSteps,
		Seed:           req.Seed,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	w.Header().Set(video.VideoIDHeader, result.VideoID)
	w.Header().Set("Content-Type", result.MIME)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

type payRequest struct {
	Address string `json:"address,omitempty"`
}

// Pay optionally attaches a wallet address first, then runs the unlock
// trade and its verification.
func (a *App) Pay(w http.ResponseWriter, r *http.Request) {
	flow, err := a.flow(w, r)
	if err != nil {
		return
	}
	var req payRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
			return
		}
	}
	if req.Address != "" {
		if err := a.Wallet.Connect(r.Context(), req.Address); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}
	if err := flow.Pay(r.Context()); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, sessionView(flow.Snapshot()))
}

// Download streams the unlocked asset. With ?format=bundle the video comes
// zipped together with its prompt and metadata.
func (a *App) Download(w http.ResponseWriter, r *http.Request) {
	flow, err := a.flow(w, r)
	if err != nil {
		return
	}
	data, mime, err := flow.Download(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	if mime == "" {
		mime = "video/mp4"
	}

	if r.URL.Query().Get("format") == "bundle" {
		snap := flow.Snapshot()
		archive, err := bundle.Build(bundle.Metadata{
			VideoID:   snap.VideoID,
			Prompt:    snap.Prompt,
			CreatedAt: snap.CreatedAt,
		}, data)
		if err != nil {
			a.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="video-bundle.zip"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(archive)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", `attachment; filename="video.mp4"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type shareRequest struct {
	Type  string `json:"type"` // "email" or "cast"
	Email string `json:"email,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Share dispatches the unlocked video by email or publishes a cast.
func (a *App) Share(w http.ResponseWriter, r *http.Request) {
	flow, err := a.flow(w, r)
	if err != nil {
		return
	}
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	switch req.Type {
	case "email":
		if err := flow.ShareEmail(r.Context(), req.Email); err != nil {
			a.fail(w, err)
			return
		}
		a.json(w, http.StatusOK, map[string]any{"shared": true, "via": "email"})
	case "cast":
		hash, err := flow.ShareCast(r.Context(), req.Text)
		if err != nil {
			a.fail(w, err)
			return
		}
		a.json(w, http.StatusOK, map[string]any{"shared": true, "via": "cast", "cast_hash": hash})
	default:
		a.error(w, http.StatusBadRequest, "bad_request", "type must be email or cast")
	}
}

func (a *App) flow(w http.ResponseWriter, r *http.Request) (*workflow.Flow, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "session id required")
		return nil, domain.ErrValidation
	}
	flow, err := a.Flows.Get(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return nil, err
	}
	return flow, nil
}
