package handler

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// OutgoingWebhook is the payload of a Mattermost outgoing webhook.
type OutgoingWebhook struct {
	Token     string
	UserID    string
	UserName  string
	ChannelID string
	PostID    string
	FileIDs   []string
}

// parseOutgoingWebhook accepts both the form and the JSON encoding. file_ids arrives as a
// comma-separated string in either.
func parseOutgoingWebhook(r *http.Request) (*OutgoingWebhook, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var raw struct {
			Token     string `json:"token"`
			UserID    string `json:"user_id"`
			UserName  string `json:"user_name"`
			ChannelID string `json:"channel_id"`
			PostID    string `json:"post_id"`
			FileIDs   string `json:"file_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode webhook: %w", err)
		}
		return &OutgoingWebhook{
			Token:     raw.Token,
			UserID:    raw.UserID,
			UserName:  raw.UserName,
			ChannelID: raw.ChannelID,
			PostID:    raw.PostID,
			FileIDs:   splitIDs(raw.FileIDs),
		}, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse webhook form: %w", err)
	}
	return &OutgoingWebhook{
		Token:     r.FormValue("token"),
		UserID:    r.FormValue("user_id"),
		UserName:  r.FormValue("user_name"),
		ChannelID: r.FormValue("channel_id"),
		PostID:    r.FormValue("post_id"),
		FileIDs:   splitIDs(r.FormValue("file_ids")),
	}, nil
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
