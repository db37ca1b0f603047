package handler

import (
	"encoding/json"
	"net/http"

	"github.com/openterrain/tilegate/pkg/state"
)

func ParseHttpData(req *http.Request) state.HttpRequestData {
	return state.HttpRequestData{
		Path:      req.URL.Path,
		UserAgent: req.UserAgent(),
		Referrer:  req.Referer(),
	}
}

// writeJson sends v with the given status. Encoding happens before the header
// is written so that a marshalling failure can still produce a 500.
func writeJson(rw http.ResponseWriter, status int, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		return err
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_, err = rw.Write(body)
	return err
}

type errorResponse struct {
	Error string `json:"error"`
}
