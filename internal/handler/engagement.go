package handler

import (
	"net/http"

	"github.com/earnhub/ledger-engine/internal/model"
)

type claimAdRequest struct {
	Type model.InteractionType `json:"type"`
}

// ClaimAd засчитывает просмотр или клик по объявлению.
func (h *Handler) ClaimAd(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	adID, ok := pathID(w, r)
	if !ok {
		return
	}

	req := claimAdRequest{Type: model.InteractionView}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.ClaimAd(r.Context(), uid, adID, req.Type)
	if err != nil {
		h.writeError(w, r, "claim ad", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// SubmitAnswer принимает ответ на головоломку.
func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	teaserID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req answerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.SubmitAnswer(r.Context(), uid, teaserID, req.Answer)
	if err != nil {
		h.writeError(w, r, "submit answer", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
