package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/skillmap/internal/adaptive"
	"github.com/kalambet/skillmap/internal/catalog"
	"github.com/kalambet/skillmap/internal/profile"
	"github.com/kalambet/skillmap/internal/progress"
	"github.com/kalambet/skillmap/internal/retrieval"
	"github.com/kalambet/skillmap/internal/roadmap"
	"github.com/kalambet/skillmap/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Runtime   *retrieval.Runtime
	Store     *storage.Store
	Profiles  *profile.Manager
	Mapper    *roadmap.Mapper
	Roadmaps  *catalog.RoadmapLoader
	Evaluator progress.RoadmapEvaluator
	Rebuild   func(ctx context.Context) (int, error) // optional; if nil, POST /kb/rebuild is disabled
	Token     string                                 // optional; if empty, bearer auth is disabled
	Logger    *slog.Logger

	// TopK and Threshold are the retrieval defaults applied when a
	// request leaves them unset. Zero values fall back to the package
	// defaults.
	TopK      int
	Threshold float64
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Group(func(pr chi.Router) {
		if deps.Token != "" {
			pr.Use(BearerAuth(deps.Token))
		}
		pr.Post("/retrieve", handleRetrieve(deps))
		pr.Get("/roadmap/roles", handleListRoles(deps))
		pr.Get("/roadmap/{role}", handleGetRoadmap(deps))
		pr.Post("/roadmap/evaluate", handleEvaluate(deps))
		pr.Get("/profile/{userID}", handleGetProfile(deps))
		pr.Patch("/profile/{userID}", handlePatchProfile(deps))
		pr.Get("/evaluations/{userID}", handleListEvaluations(deps))
		pr.Get("/kb/status", handleKBStatus(deps))
		pr.Post("/kb/rebuild", handleKBRebuild(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"kb_ready": deps.Runtime.Ready(),
		})
	}
}

type RetrieveRequest struct {
	Query     string   `json:"query"`
	TopK      int      `json:"top_k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

func handleRetrieve(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RetrieveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		if req.TopK <= 0 {
			req.TopK = deps.TopK
		}
		if req.TopK <= 0 {
			req.TopK = retrieval.DefaultTopK
		}
		threshold := retrieval.DefaultThreshold
		if deps.Threshold != 0 {
			threshold = deps.Threshold
		}
		if req.Threshold != nil {
			threshold = *req.Threshold
		}

		comps, err := deps.Runtime.Acquire(r.Context())
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "knowledge base not ready: %v", err)
			return
		}
		hits, err := comps.Scorer.Score(r.Context(), req.Query, req.TopK, threshold)
		if err != nil {
			if errors.Is(err, retrieval.ErrUninitialized) {
				httpError(w, http.StatusServiceUnavailable, "api_error", "knowledge base not ready")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "retrieval failed: %v", err)
			return
		}
		if hits == nil {
			hits = []retrieval.Hit{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
	}
}

func handleListRoles(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roles, err := deps.Roadmaps.Roles()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing roles: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	}
}

func handleGetRoadmap(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := chi.URLParam(r, "role")
		canonical, err := deps.Roadmaps.Load(role)
		if err != nil {
			if errors.Is(err, catalog.ErrRoadmapNotFound) {
				httpError(w, http.StatusNotFound, "invalid_request_error", "no roadmap for role %q", role)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "loading roadmap: %v", err)
			return
		}

		mapped, err := deps.Mapper.MapRoadmap(r.Context(), canonical)
		if err != nil {
			if errors.Is(err, retrieval.ErrUninitialized) {
				httpError(w, http.StatusServiceUnavailable, "api_error", "knowledge base not ready")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "mapping roadmap: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, mapped)
	}
}

type EvaluateRequest struct {
	UserID         string             `json:"user_id"`
	JobRole        string             `json:"job_role,omitempty"`
	ActiveCourses  []string           `json:"active_courses,omitempty"`
	CourseProgress map[string]float64 `json:"course_progress,omitempty"`
}

type EvaluateResponse struct {
	UserID       string                     `json:"user_id"`
	JobRole      string                     `json:"job_role"`
	SkillsStatus progress.SkillsStatus      `json:"skills_status"`
	Summary      progress.AssessmentSummary `json:"summary"`
	Roadmap      adaptive.FilteredRoadmap   `json:"roadmap"`
	NextSteps    map[string]string          `json:"next_steps"`
}

// handleEvaluate runs the full evaluation pipeline for one user: resolve
// the job role, map the canonical roadmap against the knowledge base,
// grade skill progress, filter the roadmap by level, and persist the
// resulting profile patch plus an audit record.
func handleEvaluate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EvaluateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		priorRaw, err := deps.Profiles.Get(req.UserID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "loading profile: %v", err)
			return
		}
		prior := profile.ParseProfile(priorRaw)

		courseProgress := req.CourseProgress
		if courseProgress == nil {
			courseProgress = prior.PlatformData.CourseProgress
		}
		activeCourses := req.ActiveCourses
		if len(activeCourses) == 0 {
			activeCourses = prior.PlatformData.ActiveCourses
		}

		jobRole := req.JobRole
		if jobRole == "" {
			jobRole = prior.RoadmapProgress.JobRole
		}
		if jobRole == "" {
			jobRole = catalog.InferJobRole(activeCourses)
		}
		if jobRole == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "job_role is required and could not be inferred from active courses")
			return
		}

		canonical, err := deps.Roadmaps.Load(jobRole)
		if err != nil {
			if errors.Is(err, catalog.ErrRoadmapNotFound) {
				httpError(w, http.StatusNotFound, "invalid_request_error", "no roadmap for role %q", jobRole)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "loading roadmap: %v", err)
			return
		}

		mapped, err := deps.Mapper.MapRoadmap(r.Context(), canonical)
		if err != nil {
			if errors.Is(err, retrieval.ErrUninitialized) {
				httpError(w, http.StatusServiceUnavailable, "api_error", "knowledge base not ready")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "mapping roadmap: %v", err)
			return
		}

		var status progress.SkillsStatus
		if prior.RoadmapProgress.JobRole == "" && len(courseProgress) == 0 {
			// First evaluation with no platform activity: seed the empty
			// roadmap state instead of grading zero progress.
			status = profile.InitializeRoadmapProgress(mapped, time.Now()).SkillsStatus
		} else {
			status = deps.Evaluator.EvaluateRoadmap(mapped, courseProgress)
		}
		levels := adaptive.LevelsFromStatus(status)
		filtered := adaptive.FilterRoadmap(mapped, levels)
		summary := progress.Summarize(status)
		nextSteps := nextStepsFor(filtered.Subskills, levels)

		patch := profile.NewPatchBuilder().RoadmapPatch(prior, jobRole, status, filtered.Subskills)
		if _, err := deps.Profiles.ApplyPatch(req.UserID, patch); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving profile: %v", err)
			return
		}

		if err := saveAudit(deps.Store, req.UserID, jobRole, status); err != nil {
			deps.Logger.Warn("failed to record evaluation", "user_id", req.UserID, "error", err)
		}

		writeJSON(w, http.StatusOK, EvaluateResponse{
			UserID:       req.UserID,
			JobRole:      jobRole,
			SkillsStatus: status,
			Summary:      summary,
			Roadmap:      filtered,
			NextSteps:    nextSteps,
		})
	}
}

// nextStepsFor pairs each remaining subskill with a recommendation drawn
// from the courses of the tier the learner should tackle next.
func nextStepsFor(subskills []catalog.Subskill, levels map[string]adaptive.Level) map[string]string {
	steps := make(map[string]string, len(subskills))
	for _, sub := range subskills {
		level := levels[sub.ID]
		tier := catalog.TierBeginner
		if level == adaptive.LevelIntermediate {
			tier = catalog.TierIntermediate
		}
		steps[sub.ID] = adaptive.NextStep(level, sub.MappedCourses[tier])
	}
	return steps
}

func saveAudit(store *storage.Store, userID, jobRole string, status progress.SkillsStatus) error {
	skillsJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshaling skills status: %w", err)
	}
	return store.SaveEvaluation(storage.Evaluation{
		ID:         uuid.New().String(),
		UserID:     userID,
		JobRole:    jobRole,
		SkillsJSON: string(skillsJSON),
		CreatedAt:  time.Now().UTC(),
	})
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		p, err := deps.Profiles.Get(userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "invalid_request_error", "profile not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "loading profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePatchProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		var patch map[string]any
		if !decodeBody(w, r, &patch) {
			return
		}
		merged, err := deps.Profiles.ApplyPatch(userID, patch)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "applying patch: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, merged)
	}
}

func handleListEvaluations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", raw)
				return
			}
			limit = n
		}
		evals, err := deps.Store.ListEvaluations(userID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing evaluations: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"evaluations": evals})
	}
}

func handleKBStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"ready": deps.Runtime.Ready()}
		if deps.Runtime.Ready() {
			comps, err := deps.Runtime.Acquire(r.Context())
			if err == nil {
				if count, err := comps.Store.Count(); err == nil {
					resp["records"] = count
				}
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleKBRebuild(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Rebuild == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "rebuild not available")
			return
		}
		count, err := deps.Rebuild(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "rebuild failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": count})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
