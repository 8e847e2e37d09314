// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// DownloadsRemainingHeader reports anonymous quota left after a tool download
const DownloadsRemainingHeader = "X-Downloads-Remaining"

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteErrorMessage(w, status, err.Error())
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFoundError writes a not found error response (404)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusInternalServerError, err)
}

// WriteBadGateway writes an upstream failure response (502)
func WriteBadGateway(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadGateway, message)
}

// RateLimitResponse is the payload returned when an anonymous quota is
// exhausted. RequiresEmail signals that switching to an email-based identity
// would grant a separate allowance.
type RateLimitResponse struct {
	Error              string `json:"error"`
	DownloadsRemaining int    `json:"downloads_remaining"`
	RequiresEmail      bool   `json:"requires_email"`
}

// WriteRateLimited writes a 429 with the remaining-quota payload
func WriteRateLimited(w http.ResponseWriter, message string, remaining int, requiresEmail bool) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(DownloadsRemainingHeader, strconv.Itoa(remaining))
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(RateLimitResponse{
		Error:              message,
		DownloadsRemaining: remaining,
		RequiresEmail:      requiresEmail,
	})
}

// WritePDF writes generated PDF bytes with a download disposition and the
// remaining-quota header.
func WritePDF(w http.ResponseWriter, pdf []byte, filename string, remaining int) error {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set(DownloadsRemainingHeader, strconv.Itoa(remaining))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(pdf)
	return err
}
