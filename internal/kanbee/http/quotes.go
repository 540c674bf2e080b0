package http

import (
	"net/http"

	"github.com/aussiebroadwan/kanbee/internal/kanbee/service"
	"github.com/aussiebroadwan/kanbee/pkg/httpx"
	"github.com/aussiebroadwan/kanbee/pkg/kanbeesdk"
)

type QuotesHandler struct {
	Quotes *service.QuoteService
}

// HandleCreate stores a quote by the caller.
//
//	@Summary	Create quote
//	@Tags		Quotes
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		request	body		kanbeesdk.CreateQuoteRequest	true	"Quote text"
//	@Success	201		{object}	kanbeesdk.Quote
//	@Failure	400		{object}	kanbeesdk.ErrorResponse
//	@Router		/v1/quotes [post].
func (h *QuotesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req kanbeesdk.CreateQuoteRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	q, err := h.Quotes.Create(r.Context(), actorFrom(r).UserID, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, q)
}

// HandleRandom returns the quote of the moment.
//
//	@Summary	Random quote
//	@Tags		Quotes
//	@Produce	json
//	@Success	200	{object}	kanbeesdk.QuoteOfTheDay
//	@Router		/v1/quotes/random [get].
func (h *QuotesHandler) HandleRandom(w http.ResponseWriter, r *http.Request) {
	q, err := h.Quotes.Random(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, q)
}
