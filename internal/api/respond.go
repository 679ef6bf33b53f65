package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sentryfleet/sentryfleet/internal/apierr"
	"github.com/sentryfleet/sentryfleet/internal/logging"
	"github.com/sentryfleet/sentryfleet/internal/validation"
)

// errorBody is the wire shape spec section 6 mandates for every error
// response: {"error": "<message>"}.
type errorBody struct {
	Error string `json:"error"`
}

// respondJSON marshals payload with goccy/go-json and writes it with an
// ETag derived from the body, the same header discipline the teacher's
// respondJSON uses.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Msg("marshal API response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", generateETag(data))
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("write API response")
	}
}

// generateETag hashes data with FNV-1a, the same scheme the teacher's
// handlers_helpers.go uses.
func generateETag(data []byte) string {
	hash := uint32(2166136261)
	for _, b := range data {
		hash ^= uint32(b)
		hash *= 16777619
	}
	return strconv.FormatUint(uint64(hash), 16)
}

// respondError translates err into the spec's {"error": "..."} envelope
// at the status apierr.HTTPStatus assigns it, logging the cause with
// control characters stripped so a malicious field can't forge log lines.
func respondError(w http.ResponseWriter, err error) {
	status := apierr.HTTPStatus(err)
	logging.Error().Str("error", sanitizeLogValue(err.Error())).Int("status", status).Msg("API error")
	respondJSON(w, status, errorBody{Error: err.Error()})
}

func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// decodeAndValidate JSON-decodes r.Body into dst and runs it through the
// shared validator, returning an *apierr.Error ready for respondError on
// either failure.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierr.Wrap(apierr.KindInvalidInput, "malformed JSON body", err)
	}
	return validation.ValidateStruct(dst)
}

// getIntParam extracts an integer query parameter with a default, lenient
// parse exactly as the teacher's helper of the same name.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getBoolParam(r *http.Request, key string, defaultValue bool) bool {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
