package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/Veblen3358/secure-reveal-lab/ledger"
	"github.com/Veblen3358/secure-reveal-lab/oracle"
)

// Handler exposes the ledger's operations as HTTP endpoints.
type Handler struct {
	ledger  *ledger.Ledger
	oracles *OracleRegistry
	log     *slog.Logger
}

// NewHandler creates a handler serving the given ledger. The registry may be
// nil when oracle registration is handled out of band.
func NewHandler(l *ledger.Ledger, oracles *OracleRegistry, log *slog.Logger) *Handler {
	return &Handler{ledger: l, oracles: oracles, log: log}
}

// RegisterRoutes registers all survey and oracle routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))

		r.Post("/surveys", h.handleCreateSurvey)
		r.Post("/surveys/batch", h.handleCreateSurveys)
		r.Get("/surveys/count", h.handleSurveyCount)
		r.Get("/surveys/{id}", h.handleGetSurvey)
		r.Get("/surveys/{id}/stats", h.handleSurveyStats)
		r.Get("/surveys/{id}/creator", h.handleSurveyCreator)
		r.Post("/surveys/{id}/pause", h.handlePause)

		r.Post("/surveys/{id}/responses", h.handleSubmitResponse)
		r.Get("/surveys/{id}/respondents", h.handleRespondents)
		r.Get("/surveys/{id}/responses/{respondent}", h.handleEncryptedResponse)
		r.Get("/surveys/{id}/responses/{respondent}/status", h.handleResponseStatus)
		r.Get("/surveys/{id}/responses/{respondent}/revealed", h.handleRevealedResponse)
		r.Post("/surveys/{id}/responses/{respondent}/decrypt", h.handleRequestDecryption)

		r.Get("/surveys/{id}/sums/{question}", h.handleEncryptedSum)
	})

	r.Post("/oracle/register", h.handleOracleRegister)
	r.Post("/oracle/callback", h.handleOracleCallback)
}

// CreateSurveyRequest carries a survey definition plus the declared creator.
type CreateSurveyRequest struct {
	Principal  string                  `json:"principal"`
	Definition ledger.SurveyDefinition `json:"definition"`
}

// CreateSurveysRequest is the atomic batch variant.
type CreateSurveysRequest struct {
	Principal   string                    `json:"principal"`
	Definitions []ledger.SurveyDefinition `json:"definitions"`
}

// SubmitResponseRequest carries one external ciphertext and proof per
// question, in question order.
type SubmitResponseRequest struct {
	Principal string                      `json:"principal"`
	Answers   []oracle.ExternalCiphertext `json:"answers"`
	Proofs    []oracle.InputProof         `json:"proofs"`
}

// PrincipalRequest is the body of operations that only need caller identity.
type PrincipalRequest struct {
	Principal string `json:"principal"`
}

// ResponseStatus reports the decryption lifecycle of a response.
type ResponseStatus struct {
	Responded bool `json:"responded"`
	Pending   bool `json:"pending"`
	Revealed  bool `json:"revealed"`
}

func (h *Handler) handleCreateSurvey(w http.ResponseWriter, r *http.Request) {
	req, err := oracle.DecodeMessage[CreateSurveyRequest](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.ledger.CreateSurvey(ledger.Principal(req.Principal), req.Definition)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, map[string]any{"survey_id": id})
}

func (h *Handler) handleCreateSurveys(w http.ResponseWriter, r *http.Request) {
	req, err := oracle.DecodeMessage[CreateSurveysRequest](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ids, err := h.ledger.CreateSurveys(ledger.Principal(req.Principal), req.Definitions)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, map[string]any{"survey_ids": ids})
}

func (h *Handler) handleSurveyCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"count": h.ledger.SurveyCount()})
}

func (h *Handler) handleGetSurvey(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}

	survey, err := h.ledger.Survey(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, survey)
}

func (h *Handler) handleSurveyStats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}

	stats, err := h.ledger.SurveyStats(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

func (h *Handler) handleSurveyCreator(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}

	creator, err := h.ledger.SurveyCreator(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"creator": creator})
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}

	req, err := oracle.DecodeMessage[PrincipalRequest](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.ledger.EmergencyPause(id, ledger.Principal(req.Principal)); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"paused": true})
}

func (h *Handler) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}

	req, err := oracle.DecodeMessage[SubmitResponseRequest](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.ledger.SubmitResponse(r.Context(), id, ledger.Principal(req.Principal), req.Answers, req.Proofs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"accepted": true})
}

func (h *Handler) handleRespondents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}

	respondents, err := h.ledger.Respondents(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"respondents": respondents})
}

func (h *Handler) handleEncryptedResponse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}
	respondent := ledger.Principal(chi.URLParam(r, "respondent"))

	handles, err := h.ledger.EncryptedResponse(id, respondent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"answers": handles})
}

func (h *Handler) handleResponseStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}
	respondent := ledger.Principal(chi.URLParam(r, "respondent"))

	if _, err := h.ledger.Survey(id); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, ResponseStatus{
		Responded: h.ledger.HasResponded(id, respondent),
		Pending:   h.ledger.IsDecryptionPending(id, respondent),
		Revealed:  h.ledger.IsResponseRevealed(id, respondent),
	})
}

func (h *Handler) handleRevealedResponse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}
	respondent := ledger.Principal(chi.URLParam(r, "respondent"))

	revealed, err := h.ledger.RevealedResponse(id, respondent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, revealed)
}

func (h *Handler) handleRequestDecryption(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}
	respondent := ledger.Principal(chi.URLParam(r, "respondent"))

	req, err := oracle.DecodeMessage[PrincipalRequest](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cid, err := h.ledger.RequestDecryption(r.Context(), id, respondent, ledger.Principal(req.Principal))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"correlation_id": cid})
}

func (h *Handler) handleEncryptedSum(w http.ResponseWriter, r *http.Request) {
	id, ok := h.surveyID(w, r)
	if !ok {
		return
	}

	question, err := strconv.Atoi(chi.URLParam(r, "question"))
	if err != nil {
		http.Error(w, "invalid question index", http.StatusBadRequest)
		return
	}

	sum, err := h.ledger.EncryptedSum(id, question)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"sum": sum})
}

func (h *Handler) handleOracleRegister(w http.ResponseWriter, r *http.Request) {
	if h.oracles == nil {
		http.Error(w, "oracle registration disabled", http.StatusNotFound)
		return
	}

	signedReg, err := oracle.DecodeMessage[oracle.Signed[OracleRegistration]](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := h.oracles.Register(signedReg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	writeJSON(w, map[string]any{
		"public_key":     entry.PublicKey.String(),
		"measurement_id": entry.MeasurementID,
	})
}

// handleOracleCallback accepts a signed decryption result. The envelope's
// signature doubles as the result's authenticity proof; the ledger's verifier
// decides whether the signing key is trusted.
func (h *Handler) handleOracleCallback(w http.ResponseWriter, r *http.Request) {
	signedRes, err := oracle.DecodeMessage[oracle.Signed[oracle.DecryptionResult]](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res := signedRes.UnsafeObject()
	proof := oracle.AuthenticityProof{
		PublicKey: signedRes.PublicKey,
		Signature: signedRes.Signature,
	}

	// The coordinator counts rejected callbacks; no metrics here.
	if err := h.ledger.OnDecryptionCallback(res.CorrelationID, res.Plaintexts, proof); err != nil {
		h.log.Warn("rejected oracle callback",
			"correlation_id", res.CorrelationID,
			"err", err)
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"accepted": true})
}

func (h *Handler) surveyID(w http.ResponseWriter, r *http.Request) (ledger.SurveyID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid survey id", http.StatusBadRequest)
		return 0, false
	}
	return ledger.SurveyID(id), true
}

// writeError maps ledger error classes onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case ledger.IsValidation(err):
		status = http.StatusBadRequest
	case ledger.IsAuthorization(err):
		status = http.StatusForbidden
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case ledger.IsState(err), ledger.IsCorrelation(err):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.Error("internal error", "err", err)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
