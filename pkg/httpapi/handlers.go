package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"messagecraft/pkg/auth"
	"messagecraft/pkg/persistence"
	"messagecraft/pkg/pipeline"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CompanyName string `json:"company_name"`
}

// handleRegister implements POST /api/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.authSvc.Register(req.Email, req.Password, req.CompanyName)
	switch {
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, persistence.ErrEmailTaken):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("Registration failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	s.writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin implements POST /api/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, user, err := s.authSvc.Login(req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("Login failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": user})
}

// handleLogout implements POST /api/logout.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ *persistence.User) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if err := s.authSvc.Logout(token); err != nil {
		s.logger.Warn("Logout failed: %v", err)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

type generateRequest struct {
	BusinessDescription string `json:"business_description"`
	CompanyName         string `json:"company_name"`
	Industry            string `json:"industry"`
	Questionnaire       string `json:"questionnaire"`
}

// handleGenerate implements POST /api/generate. The run happens in the
// background; the response carries the session ID for progress polling.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, user *persistence.User) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.BusinessDescription) == "" {
		s.writeError(w, http.StatusBadRequest, "business_description is required")
		return
	}

	// Reject before queueing when the account cannot pay for the result
	balance, err := s.store.CreditBalance(user.ID)
	if err != nil {
		s.logger.Error("Balance check failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to check credits")
		return
	}
	if balance < 1 {
		s.writeError(w, http.StatusPaymentRequired, "insufficient credits")
		return
	}

	sess := &persistence.Session{
		ID:                  uuid.New().String(),
		UserID:              user.ID,
		BusinessDescription: req.BusinessDescription,
		Questionnaire:       req.Questionnaire,
	}
	if err := s.store.CreateSession(sess); err != nil {
		s.logger.Error("Session creation failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	if req.CompanyName == "" {
		req.CompanyName = user.CompanyName
	}

	s.runs.Add(1)
	go s.runGeneration(sess, user, req)

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": sess.ID,
		"status":     persistence.SessionQueued,
	})
}

// runGeneration executes one pipeline run in the background and persists
// the outcome.
func (s *Server) runGeneration(sess *persistence.Session, user *persistence.User, req generateRequest) {
	defer s.runs.Done()

	ctx, cancel := context.WithTimeout(s.baseCtx, s.opts.GenerationTimeout)
	defer cancel()

	if err := s.store.UpdateSessionStatus(sess.ID, persistence.SessionRunning, ""); err != nil {
		s.logger.Error("Failed to mark session running: %v", err)
	}

	st, err := s.generator.Run(ctx, pipeline.Request{
		SessionID:           sess.ID,
		BusinessDescription: sess.BusinessDescription,
		CompanyName:         req.CompanyName,
		Industry:            req.Industry,
		Questionnaire:       sess.Questionnaire,
		QualityThreshold:    s.opts.QualityThreshold,
		MaxReflectionCycles: s.effectiveMaxCycles(),
	})
	if err != nil {
		s.logger.Error("Generation for session %s aborted: %v", sess.ID, err)
		_ = s.store.UpdateSessionStatus(sess.ID, persistence.SessionFailed, err.Error())
		return
	}

	content, err := json.Marshal(st.FinalOutput)
	if err != nil {
		s.logger.Error("Failed to serialize playbook for session %s: %v", sess.ID, err)
		_ = s.store.UpdateSessionStatus(sess.ID, persistence.SessionFailed, "failed to serialize playbook")
		return
	}

	quality := st.CurrentQuality
	pb := &persistence.Playbook{
		ID:           uuid.New().String(),
		SessionID:    sess.ID,
		UserID:       user.ID,
		Title:        playbookTitle(sess.BusinessDescription),
		Content:      string(content),
		QualityScore: &quality,
	}
	if err := s.store.SavePlaybook(pb); err != nil {
		s.logger.Error("Failed to save playbook for session %s: %v", sess.ID, err)
		_ = s.store.UpdateSessionStatus(sess.ID, persistence.SessionFailed, err.Error())
		return
	}

	if err := s.store.RecordSessionOutcome(sess.ID, st.CurrentQuality, st.ReflectionCycle); err != nil {
		s.logger.Warn("Failed to record outcome for session %s: %v", sess.ID, err)
	}
	if err := s.store.UpdateSessionStatus(sess.ID, persistence.SessionCompleted, ""); err != nil {
		s.logger.Error("Failed to mark session completed: %v", err)
	}

	s.logger.Info("✅ Session %s completed: playbook %s (quality %.2f)", sess.ID, pb.ID, st.CurrentQuality)
}

func (s *Server) effectiveMaxCycles() int {
	if s.opts.MaxReflectionCycles >= 0 {
		return s.opts.MaxReflectionCycles
	}
	return -1
}

// playbookTitle derives a short title from the business description.
func playbookTitle(description string) string {
	const maxLen = 60
	title := strings.Join(strings.Fields(description), " ")
	if len(title) > maxLen {
		title = strings.TrimSpace(title[:maxLen]) + "…"
	}
	if title == "" {
		title = "Messaging Playbook"
	}
	return title
}

// handleSession routes GET /api/sessions/{id} and
// GET /api/sessions/{id}/usage.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, user *persistence.User) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	sessionID, suffix, _ := strings.Cut(rest, "/")
	if sessionID == "" {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	sess, err := s.store.GetSession(sessionID)
	if errors.Is(err, persistence.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("Session lookup failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess.UserID != user.ID {
		// Do not reveal that the session exists
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}

	switch suffix {
	case "":
		s.writeSessionStatus(w, sess)
	case "usage":
		s.writeSessionUsage(w, r, sess)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) writeSessionStatus(w http.ResponseWriter, sess *persistence.Session) {
	stages, err := s.store.GetStages(sess.ID)
	if err != nil {
		s.logger.Error("Stage lookup failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}

	response := map[string]any{
		"session": sess,
		"stages":  stages,
	}
	if sess.Status == persistence.SessionCompleted {
		if pb, err := s.store.GetPlaybookBySession(sess.ID); err == nil {
			response["playbook_id"] = pb.ID
		}
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeSessionUsage(w http.ResponseWriter, r *http.Request, sess *persistence.Session) {
	if s.usage == nil {
		s.writeError(w, http.StatusServiceUnavailable, "usage reporting not configured")
		return
	}

	usage, err := s.usage.GetSessionUsage(r.Context(), sess.ID)
	if err != nil {
		s.logger.Error("Usage query failed: %v", err)
		s.writeError(w, http.StatusBadGateway, "usage query failed")
		return
	}

	byStage, err := s.usage.GetSessionUsageByStage(r.Context(), sess.ID)
	if err != nil {
		s.logger.Warn("Per-stage usage query failed: %v", err)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"usage":    usage,
		"by_stage": byStage,
	})
}

// handlePlaybooks implements GET /api/playbooks.
func (s *Server) handlePlaybooks(w http.ResponseWriter, r *http.Request, user *persistence.User) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	playbooks, err := s.store.ListPlaybooks(user.ID)
	if err != nil {
		s.logger.Error("Playbook list failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list playbooks")
		return
	}
	if playbooks == nil {
		playbooks = []*persistence.Playbook{}
	}
	s.writeJSON(w, http.StatusOK, playbooks)
}

// handlePlaybook implements GET and DELETE /api/playbooks/{id}.
func (s *Server) handlePlaybook(w http.ResponseWriter, r *http.Request, user *persistence.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/playbooks/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "playbook not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		pb, err := s.store.GetPlaybook(id)
		if errors.Is(err, persistence.ErrNotFound) || (err == nil && pb.UserID != user.ID) {
			s.writeError(w, http.StatusNotFound, "playbook not found")
			return
		}
		if err != nil {
			s.logger.Error("Playbook lookup failed: %v", err)
			s.writeError(w, http.StatusInternalServerError, "failed to load playbook")
			return
		}
		s.writeJSON(w, http.StatusOK, pb)

	case http.MethodDelete:
		err := s.store.DeletePlaybook(id, user.ID)
		if errors.Is(err, persistence.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "playbook not found")
			return
		}
		if err != nil {
			s.logger.Error("Playbook delete failed: %v", err)
			s.writeError(w, http.StatusInternalServerError, "failed to delete playbook")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCredits implements GET /api/credits.
func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request, user *persistence.User) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	balance, err := s.store.CreditBalance(user.ID)
	if err != nil {
		s.logger.Error("Balance lookup failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load balance")
		return
	}

	entries, err := s.store.LedgerEntries(user.ID)
	if err != nil {
		s.logger.Error("Ledger lookup failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	if entries == nil {
		entries = []*persistence.CreditEntry{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"balance": balance,
		"ledger":  entries,
	})
}
