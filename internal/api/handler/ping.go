package handler

import (
	"net/http"

	"github.com/kiranshivaraju/selfservice/internal/api/response"
)

// Ping answers GET /ping for load balancer checks.
func Ping(w http.ResponseWriter, _ *http.Request) {
	response.Text(w, http.StatusOK, "pong\n")
}
