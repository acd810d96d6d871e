package models

import (
	"encoding/json"
	"net/http"
)

// Problem — ответ об ошибке в духе RFC 7807.
type Problem struct {
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

func WriteProblem(w http.ResponseWriter, status int, title, detail string, extra map[string]string) {
	w.Header().Set("Content-Type", "application/problem+json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:  title,
		Status: status,
		Detail: detail,
		Extra:  extra,
	})
}
