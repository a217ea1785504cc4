package authtest

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/google/uuid"
)

// fieldError mirrors one entry of a validation error list: {"loc": [...], "msg": "...", "type": "..."}.
type fieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeFieldErrors(w http.ResponseWriter, field string, msgs []string) {
	loc := []string{"body"}
	if field != "" {
		loc = append(loc, field)
	}
	list := make([]fieldError, 0, len(msgs))
	for _, msg := range msgs {
		list = append(list, fieldError{Loc: loc, Msg: msg, Type: "value_error"})
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": list})
}

// sortFieldErrors orders by field name so responses are deterministic.
func sortFieldErrors(list []fieldError) []fieldError {
	sort.Slice(list, func(i, j int) bool {
		return list[i].Loc[len(list[i].Loc)-1] < list[j].Loc[len(list[j].Loc)-1]
	})
	return list
}

func newID() string {
	return uuid.NewString()
}
