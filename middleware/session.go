package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/MrEthical07/goSession"
)

// Sessions is the part of goSession.Engine the session handler needs.
type Sessions interface {
	Verifier
	Initiate(ctx context.Context, identifier, secret string) (*goSession.SessionResult, error)
}

// LoginRequest is the POST /session body. Username may hold an email address.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

const maxLoginBody = 16 << 10

// SessionHandler serves POST (log in) and GET (re-authenticate) on one path.
// Both respond with the SessionResult JSON.
func SessionHandler(s Sessions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s == nil {
			WriteError(w, goSession.ErrEngineNotReady)
			return
		}
		w.Header().Set(ReadOnlyHeader, strconv.FormatBool(s.ReadOnly()))
		ctx := WithRequestMetadata(r)

		var (
			res *goSession.SessionResult
			err error
		)
		switch r.Method {
		case http.MethodPost:
			var req LoginRequest
			if req, err = decodeLogin(r.Body); err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "bad_request", Message: err.Error()})
				return
			}
			res, err = s.Initiate(ctx, req.Username, req.Password)
			if err == nil {
				w.Header().Set("Location", r.URL.Path)
			}
		case http.MethodGet:
			res, err = s.Verify(ctx, r.Header.Get("Authorization"))
		default:
			w.Header().Set("Allow", "GET, POST")
			writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{Error: "method_not_allowed", Message: "Method not allowed"})
			return
		}
		if err != nil {
			WriteError(w, err)
			return
		}

		status := http.StatusOK
		if r.Method == http.MethodPost {
			status = http.StatusCreated
		}
		writeJSON(w, status, res)
	})
}

func decodeLogin(body io.Reader) (LoginRequest, error) {
	var req LoginRequest
	dec := json.NewDecoder(io.LimitReader(body, maxLoginBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return LoginRequest{}, errors.New("request body must be a JSON object with username and password")
	}
	return req, nil
}
