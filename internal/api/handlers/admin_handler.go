package handlers

import (
	"net/http"

	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/referral"
)

// AdminHandler serves the partner program console: partners, codes,
// conversion review, payouts and the overview.
type AdminHandler struct {
	service *referral.Service
	logger  *logger.Logger
}

func NewAdminHandler(service *referral.Service, log *logger.Logger) *AdminHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminHandler{service: service, logger: log}
}

// idOrBadRequest reads a path id, answering 400 itself when it is malformed.
func idOrBadRequest(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := pathID(r, name)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return 0, false
	}
	return id, true
}

// Partners

func (h *AdminHandler) ListPartners(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	partners, err := h.service.ListPartners(r.Context(), limit, offset)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"partners": partners,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *AdminHandler) CreatePartner(w http.ResponseWriter, r *http.Request) {
	var in referral.PartnerInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	partner, err := h.service.CreatePartner(r.Context(), in)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, partner)
}

func (h *AdminHandler) GetPartner(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	partner, err := h.service.GetPartner(r.Context(), id)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, partner)
}

func (h *AdminHandler) UpdatePartner(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	var in referral.PartnerInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	partner, err := h.service.UpdatePartner(r.Context(), id, in)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, partner)
}

func (h *AdminHandler) DeletePartner(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeletePartner(r.Context(), id); err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Codes

func (h *AdminHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	codes, err := h.service.ListCodes(r.Context(), id)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"codes": codes})
}

func (h *AdminHandler) CreateCode(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	var in referral.CreateCodeInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	in.PartnerID = id

	code, err := h.service.CreateCode(r.Context(), in)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, code)
}

func (h *AdminHandler) SetCodeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Status models.CodeStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	code, err := h.service.SetCodeStatus(r.Context(), id, req.Status)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, code)
}

// Conversions

func (h *AdminHandler) ListConversions(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	limit, offset := pageParams(r)
	conversions, err := h.service.ListConversions(r.Context(), id, limit, offset)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversions": conversions,
		"limit":       limit,
		"offset":      offset,
	})
}

func (h *AdminHandler) ApproveConversion(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	conversion, err := h.service.ApproveConversion(r.Context(), id)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, conversion)
}

func (h *AdminHandler) CancelConversion(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	conversion, err := h.service.CancelConversion(r.Context(), id, req.Reason)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, conversion)
}

// Payouts

func (h *AdminHandler) SchedulePayout(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	batch, err := h.service.SchedulePayout(r.Context(), id)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, batch)
}

func (h *AdminHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	limit, offset := pageParams(r)
	payouts, err := h.service.ListPayouts(r.Context(), id, limit, offset)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"payouts": payouts,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *AdminHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	batch, err := h.service.GetPayout(r.Context(), id)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

func (h *AdminHandler) MarkPayoutProcessing(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	batch, err := h.service.MarkProcessing(r.Context(), id)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

func (h *AdminHandler) MarkPayoutProcessed(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	batch, err := h.service.MarkProcessed(r.Context(), id, req.TransactionID)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

func (h *AdminHandler) MarkPayoutFailed(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	batch, err := h.service.MarkFailed(r.Context(), id, req.Reason)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

func (h *AdminHandler) CancelPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := idOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	batch, err := h.service.CancelPayout(r.Context(), id)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, batch)
}

// RunPayouts schedules a batch for every eligible partner at once. Partial
// failures are reported next to the batches that did get created.
func (h *AdminHandler) RunPayouts(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.ScheduleAll(r.Context())
	if summary == nil {
		mapReferralError(w, h.logger, err)
		return
	}

	response := map[string]interface{}{
		"success": err == nil,
		"batches": summary.Batches,
		"skipped": summary.Skipped,
	}
	if err != nil {
		h.logger.Error("Payout run finished with errors: %v", err)
		response["error"] = err.Error()
	}
	respondJSON(w, http.StatusOK, response)
}

// Overview

func (h *AdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}
