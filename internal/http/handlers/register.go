// Package handlers implements the JSON+SSE API surface: caller
// registration, activity ingestion, usage analytics, the live event
// stream, and the health probe.
package handlers

import (
	"encoding/json"

	"github.com/valyala/fasthttp"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/apperr"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/auth"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/http/respond"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

// CallerStore is the subset of *store.Store the registration handler
// needs.
type CallerStore interface {
	CreateCaller(c *store.Caller) error
}

type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	RateLimit int    `json:"rate_limit"`
}

type registerResponse struct {
	CallerID  string `json:"caller_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	APIKey    string `json:"api_key"`
	Token     string `json:"token"`
	RateLimit int    `json:"rate_limit"`
	CreatedAt string `json:"created_at"`
}

// Register handles POST /register: allocates a caller id and API key,
// stores the bcrypt hash plus an AES-256-GCM-encrypted recovery copy, and
// returns both the plaintext key and a signed JWT. The plaintext key is
// shown exactly once, here. A request that omits rate_limit gets
// defaultRateLimit echoed as the effective ceiling; the stored row keeps
// 0 so later changes to the configured default apply to the caller.
func Register(callers CallerStore, cipher *auth.Cipher, signer *auth.Signer, defaultRateLimit int) fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		var req registerRequest
		if err := json.Unmarshal(rc.PostBody(), &req); err != nil {
			respond.Error(rc, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Name == "" || req.Email == "" {
			respond.Error(rc, fasthttp.StatusBadRequest, "name and email are required")
			return
		}

		callerID, err := auth.GenerateCallerID()
		if err != nil {
			respond.Error(rc, fasthttp.StatusInternalServerError, "failed to allocate caller id")
			return
		}

		apiKey, err := auth.GenerateAPIKey(callerID)
		if err != nil {
			respond.Error(rc, fasthttp.StatusInternalServerError, "failed to generate api key")
			return
		}
		hash, err := auth.HashAPIKey(apiKey)
		if err != nil {
			respond.Error(rc, fasthttp.StatusInternalServerError, "failed to hash api key")
			return
		}
		encrypted, err := cipher.EncryptString(apiKey)
		if err != nil {
			respond.Error(rc, fasthttp.StatusInternalServerError, "failed to encrypt api key")
			return
		}

		caller := &store.Caller{
			CallerID:            callerID,
			Name:                req.Name,
			Email:               req.Email,
			Active:              true,
			RateLimit:           req.RateLimit,
			CredentialHash:      hash,
			CredentialEncrypted: encrypted,
		}
		if err := callers.CreateCaller(caller); err != nil {
			if err == apperr.ErrConflict {
				respond.Error(rc, fasthttp.StatusConflict, "email already registered")
				return
			}
			respond.Error(rc, fasthttp.StatusInternalServerError, "failed to create caller")
			return
		}

		token, err := signer.Issue(caller.CallerID, caller.Email, caller.Name)
		if err != nil {
			respond.Error(rc, fasthttp.StatusInternalServerError, "failed to issue token")
			return
		}

		effectiveLimit := caller.RateLimit
		if effectiveLimit <= 0 {
			effectiveLimit = defaultRateLimit
		}

		respond.OK(rc, fasthttp.StatusCreated, "caller registered", registerResponse{
			CallerID:  caller.CallerID,
			Name:      caller.Name,
			Email:     caller.Email,
			APIKey:    apiKey,
			Token:     token,
			RateLimit: effectiveLimit,
			CreatedAt: caller.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
}
