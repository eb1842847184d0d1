package httpadapter

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

const (
	defaultStatementLimit = 50
	xlsxContentType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type creditsResponse struct {
	Account      *domain.CreditAccount      `json:"account"`
	Transactions []domain.CreditTransaction `json:"transactions"`
}

func (rt *Router) getCredits(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	account, err := rt.svc.Credits.Balance(r.Context(), userID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	limit, err := queryLimit(r, defaultStatementLimit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	transactions, err := rt.svc.Credits.Statement(r.Context(), userID, limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if transactions == nil {
		transactions = []domain.CreditTransaction{}
	}
	writeJSON(w, http.StatusOK, creditsResponse{Account: account, Transactions: transactions})
}

func (rt *Router) exportStatement(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := rt.svc.Credits.ExportStatement(r.Context(), userID, &buf); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="statement.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) grantCredits(w http.ResponseWriter, r *http.Request) {
	if !rt.isAdmin(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin credentials required"})
		return
	}
	var req grantRequest
	if err := rt.decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse amount", errors.New("amount must be a positive number")))
		return
	}
	description := req.Description
	if description == "" {
		description = "manual grant"
	}
	tx, err := rt.svc.Credits.Grant(r.Context(), req.UserID, amount, description)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// isAdmin checks the bearer token against the configured admin key. An empty
// key disables the admin surface entirely.
func (rt *Router) isAdmin(r *http.Request) bool {
	if rt.cfg.AdminAPIKey == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(rt.cfg.AdminAPIKey)) == 1
}
