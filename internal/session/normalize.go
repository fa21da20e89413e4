package session

import (
	"encoding/json"
	"fmt"

	"github.com/utafrali/freshcart/internal/domain"
)

// NormalizeUser extracts the user from any envelope the backend uses. The
// first match wins:
//
//  1. {"data": {"user": {...}}}
//  2. {"user": {"data": {...}}}
//  3. {"user": {...}}
//  4. {"data": {...}} when it looks like a user
//  5. the top-level object when it looks like a user
//
// An empty payload, a null, or an object with no user yields nil.
func NormalizeUser(raw json.RawMessage) (*domain.User, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	root := object(raw)
	if root == nil {
		return nil, fmt.Errorf("user payload is not an object: %.40s", raw)
	}

	var candidate json.RawMessage
	data, user := object(root["data"]), object(root["user"])
	switch {
	case data != nil && object(data["user"]) != nil:
		candidate = data["user"]
	case user != nil && object(user["data"]) != nil:
		candidate = user["data"]
	case user != nil:
		candidate = root["user"]
	case data != nil && looksLikeUser(data):
		candidate = root["data"]
	case looksLikeUser(root):
		candidate = raw
	default:
		return nil, nil
	}

	var u domain.User
	if err := json.Unmarshal(candidate, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// NormalizeToken extracts the credential: data.token first, then token.
func NormalizeToken(raw json.RawMessage) string {
	root := object(raw)
	if root == nil {
		return ""
	}
	if data := object(root["data"]); data != nil {
		if t := str(data["token"]); t != "" {
			return t
		}
	}
	return str(root["token"])
}

// NormalizeCategories accepts a bare array or {"data": [...]}.
func NormalizeCategories(raw json.RawMessage) ([]domain.Category, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []domain.Category{}, nil
	}

	var list []domain.Category
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var envelope struct {
		Data []domain.Category `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	if envelope.Data == nil {
		envelope.Data = []domain.Category{}
	}
	return envelope.Data, nil
}

func object(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func str(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func looksLikeUser(m map[string]json.RawMessage) bool {
	_, hasID := m["id"]
	_, hasEmail := m["email"]
	return hasID || hasEmail
}
