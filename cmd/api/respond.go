package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"cardswap/auth"
	"cardswap/catalog"
	"cardswap/contact"
	"cardswap/report"
	"cardswap/reputation"
	"cardswap/trade"
)

const maxBodyBytes = 1 << 20

type problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, problem{Code: code, Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return false
	}
	return true
}

// domainErrors maps the collaborators' sentinels onto HTTP. Trade errors are
// handled by kind.
var domainErrors = []struct {
	err    error
	status int
	code   string
}{
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{auth.ErrWeakPassword, http.StatusBadRequest, "WEAK_PASSWORD"},
	{auth.ErrInvalidProfile, http.StatusBadRequest, "INVALID_PROFILE"},
	{auth.ErrDuplicateEmail, http.StatusConflict, "DUPLICATE_EMAIL"},
	{auth.ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{contact.ErrInvalidCode, http.StatusBadRequest, "INVALID_CONTACT_CODE"},
	{contact.ErrLabelTooLong, http.StatusBadRequest, "LABEL_TOO_LONG"},
	{contact.ErrNotFound, http.StatusNotFound, "CONTACT_NOT_FOUND"},
	{report.ErrInvalidReason, http.StatusBadRequest, "INVALID_REASON"},
	{report.ErrNotFound, http.StatusNotFound, "REPORT_NOT_FOUND"},
	{report.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{report.ErrBadStatus, http.StatusConflict, "INVALID_REPORT_STATUS"},
	{report.ErrNoCounterpart, http.StatusConflict, "NO_COUNTERPART"},
	{catalog.ErrNotFound, http.StatusNotFound, "CARD_NOT_FOUND"},
	{catalog.ErrEmptyQuery, http.StatusBadRequest, "EMPTY_QUERY"},
	{reputation.ErrInvalidUser, http.StatusNotFound, "USER_NOT_FOUND"},
}

// writeError renders err. Anything unclassified is logged and reported as
// INTERNAL without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var te *trade.Error
	if errors.As(err, &te) && te.Kind != trade.KindInternal {
		writeProblem(w, kindStatus(te.Kind), te.Code, te.Message)
		return
	}
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			writeProblem(w, m.status, m.code, m.err.Error())
			return
		}
	}
	s.log().Error("request failed",
		"request_id", middleware.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeProblem(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
}

func kindStatus(k trade.Kind) int {
	switch k {
	case trade.KindValidation:
		return http.StatusBadRequest
	case trade.KindNotFound:
		return http.StatusNotFound
	case trade.KindConflict:
		return http.StatusConflict
	case trade.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
