package httpapi

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"refillpos/internal/checkout"
	"refillpos/internal/service"
)

func terminalID(r *http.Request) string {
	return chi.URLParam(r, "terminalID")
}

func lineKey(r *http.Request) string {
	raw := chi.URLParam(r, "lineKey")
	if key, err := url.PathUnescape(raw); err == nil {
		return key
	}
	return raw
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.GetCart(r.Context(), terminalID(r))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req service.AddToCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.OverridePrice != nil || req.DiscountType != "" {
		ok, proceed := a.checkManagerPIN(w, r, req.ManagerPIN)
		if !proceed {
			return
		}
		req.ManagerApproved = ok
	}

	view, key, err := a.service.AddToCart(r.Context(), terminalID(r), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": view, "line_key": key})
}

func (a *API) handleAddCustomLine(w http.ResponseWriter, r *http.Request) {
	var req service.CustomLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ok, proceed := a.checkManagerPIN(w, r, req.ManagerPIN)
	if !proceed {
		return
	}
	req.ManagerApproved = ok

	view, key, err := a.service.AddCustomLine(r.Context(), terminalID(r), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": view, "line_key": key})
}

func (a *API) handleAdjustLine(w http.ResponseWriter, r *http.Request) {
	var req service.AdjustLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.AdjustLine(r.Context(), terminalID(r), lineKey(r), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.RemoveFromCart(r.Context(), terminalID(r), lineKey(r))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.ClearCart(r.Context(), terminalID(r))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSelectCustomer(w http.ResponseWriter, r *http.Request) {
	var req service.SelectCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.SelectCustomer(r.Context(), terminalID(r), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleCheckout answers failures with the same notice the operator screen
// shows, so clients never have to interpret error strings.
func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req service.FinalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.FinalizeSale(r.Context(), terminalID(r), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			a.logger.Sugar().Errorw("checkout failed", "terminal_id", terminalID(r), "error", err)
		}
		notice := checkout.NoticeFor(err)
		if notice.Kind == checkout.NoticeError && status < http.StatusInternalServerError {
			notice.Message = err.Error()
		}
		payload := map[string]any{
			"error":   notice.Message,
			"notices": []checkout.Notice{notice},
		}
		var partial *checkout.PartialSaleError
		if errors.As(err, &partial) {
			payload["sale_id"] = partial.SaleID
		}
		writeJSON(w, status, payload)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}
