package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
)

// maxBodySize bounds login and signup bodies.
const maxBodySize = 64 << 10

func isJSONRequest(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// decodeJSON decodes a size-limited JSON body into T. On failure it writes a
// 400 response and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
		}
		return v, false
	}
	return v, true
}

// parseForm parses a size-limited form body. On failure it writes a 400
// response and returns false.
func parseForm(w http.ResponseWriter, r *http.Request, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return false
	}
	return true
}

func formBool(v string) bool {
	if v == "on" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// decodeLoginRequest reads a login request from JSON or a form post.
func decodeLoginRequest(w http.ResponseWriter, r *http.Request) (LoginRequest, bool) {
	if isJSONRequest(r) {
		return decodeJSON[LoginRequest](w, r, maxBodySize)
	}
	if !parseForm(w, r, maxBodySize) {
		return LoginRequest{}, false
	}
	return LoginRequest{
		LoginID:     firstNonEmpty(r.PostForm.Get("loginId"), r.PostForm.Get("login_id")),
		Password:    r.PostForm.Get("password"),
		Remember:    formBool(r.PostForm.Get("remember")),
		RedirectURL: r.PostForm.Get("redirectURL"),
	}, true
}

// decodeSignupRequest reads a signup request from JSON or a form post.
func decodeSignupRequest(w http.ResponseWriter, r *http.Request) (SignupRequest, bool) {
	if isJSONRequest(r) {
		return decodeJSON[SignupRequest](w, r, maxBodySize)
	}
	if !parseForm(w, r, maxBodySize) {
		return SignupRequest{}, false
	}
	return SignupRequest{
		LoginID:  firstNonEmpty(r.PostForm.Get("loginId"), r.PostForm.Get("login_id")),
		Name:     r.PostForm.Get("name"),
		Password: r.PostForm.Get("password"),
	}, true
}
