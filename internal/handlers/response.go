package handlers

import (
  "net/http"

  "github.com/gin-gonic/gin"

  "github.com/medvault/medvault-backend/internal/agents"
)

type APIError struct {
  Message string `json:"message"`
  Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
  Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
  msg := "unknown error"
  if err != nil {
    msg = err.Error()
  }
  c.JSON(status, ErrorEnvelope{
    Error: APIError{
      Message: msg,
      Code:    code,
    },
  })
}

func RespondOK(c *gin.Context, payload any) {
  c.JSON(http.StatusOK, payload)
}

// StatusForKind maps the agent error taxonomy to HTTP statuses.
func StatusForKind(kind agents.Kind) int {
  switch kind {
  case agents.KindNotFound:
    return http.StatusNotFound
  case agents.KindAccessDenied:
    return http.StatusForbidden
  case agents.KindEmbeddingService, agents.KindGeneration:
    return http.StatusBadGateway
  default:
    return http.StatusInternalServerError
  }
}

// RespondAgentError translates an agent failure into its HTTP shape. Internal
// causes are logged by the agents; the client sees the kind and message only.
func RespondAgentError(c *gin.Context, err error) {
  kind := agents.KindOf(err)
  if kind == "" {
    RespondError(c, http.StatusInternalServerError, "internal_error", err)
    return
  }
  RespondError(c, StatusForKind(kind), string(kind), err)
}
