package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/v2/bson"

	"crewshift-bot/internal/auth"
	"crewshift-bot/internal/i18n"
	"crewshift-bot/internal/mattermost"
	"crewshift-bot/internal/model"
	"crewshift-bot/internal/service"
	"crewshift-bot/internal/shift"
)

type ShiftEvents interface {
	Handle(ctx context.Context, in service.InboundEvent) (*service.Result, error)
}

type Accounts interface {
	Activate(ctx context.Context, id service.Identity, token string) (string, error)
	Status(ctx context.Context, externalUserID string) (string, error)
	TasksToday(ctx context.Context, externalUserID string) (string, error)
	History(ctx context.Context, externalUserID string) (string, error)
}

// Users looks up chat users for their locale.
type Users interface {
	GetUser(ctx context.Context, userID string) (*mattermost.User, error)
}

type ShiftHandler struct {
	events     ShiftEvents
	accounts   Accounts
	users      Users
	botURL     string
	enabled    bool
	slashToken string
	validate   *validator.Validate
}

type ShiftHandlerConfig struct {
	BotURL string
	// Enabled is false when the bot is switched off or has no token. Events are then dropped.
	Enabled bool
	// SlashToken, when set, must match the token of slash commands, webhooks and structured events.
	SlashToken string
}

func NewShiftHandler(events ShiftEvents, accounts Accounts, users Users, cfg ShiftHandlerConfig) *ShiftHandler {
	return &ShiftHandler{
		events:     events,
		accounts:   accounts,
		users:      users,
		botURL:     cfg.BotURL,
		enabled:    cfg.Enabled,
		slashToken: cfg.SlashToken,
		validate:   validator.New(),
	}
}

// SlashResponse is the response to a slash command.
type SlashResponse struct {
	ResponseType string                  `json:"response_type"` // "ephemeral" or "in_channel"
	Text         string                  `json:"text,omitempty"`
	Attachments  []mattermost.Attachment `json:"attachments,omitempty"`
}

// ActionRequest is the Mattermost interactive action request.
type ActionRequest struct {
	UserID    string         `json:"user_id"`
	UserName  string         `json:"user_name"`
	ChannelID string         `json:"channel_id"`
	PostID    string         `json:"post_id"`
	TriggerID string         `json:"trigger_id"`
	Type      string         `json:"type"`
	Context   map[string]any `json:"context"`
}

// ActionResponse is the response to an interactive action.
type ActionResponse struct {
	EphemeralText string `json:"ephemeral_text,omitempty"`
}

// EventRequest is a structured worker event, e.g. a location ping relayed from the mobile app.
type EventRequest struct {
	Type      string   `json:"type" validate:"required,oneof=start end location photo select_object finish"`
	UserID    string   `json:"user_id" validate:"required"`
	ChannelID string   `json:"channel_id"`
	Latitude  *float64 `json:"latitude" validate:"required_if=Type location,omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"required_if=Type location,omitempty,longitude"`
	FileIDs   []string `json:"file_ids" validate:"required_if=Type photo,dive,required"`
	ObjectID  string   `json:"object_id" validate:"required_if=Type select_object,omitempty,hexadecimal,len=24"`
}

// EventResponse reports the state transition of a structured event.
type EventResponse struct {
	From      string `json:"from"`
	State     string `json:"state"`
	Rejection string `json:"rejection,omitempty"`
}

// localeCtx fetches the user's locale from Mattermost and returns a context with locale set.
func (h *ShiftHandler) localeCtx(ctx context.Context, userID string) context.Context {
	if h.users == nil {
		return ctx
	}
	user, err := h.users.GetUser(ctx, userID)
	if err != nil {
		log.Printf("i18n: GetUser(%s) failed: %v", userID, err)
		return ctx
	}
	if user.Locale == "" {
		return ctx
	}
	return i18n.WithLocale(ctx, user.Locale)
}

// HandleSlashCommand handles /shift [start|end|finish|status|tasks|history|activate <token>].
func (h *ShiftHandler) HandleSlashCommand(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if h.slashToken != "" && r.FormValue("token") != h.slashToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.enabled {
		w.WriteHeader(http.StatusOK)
		return
	}

	userID := r.FormValue("user_id")
	channelID := r.FormValue("channel_id")
	ctx := h.localeCtx(r.Context(), userID)

	fields := strings.Fields(r.FormValue("text"))
	sub := ""
	if len(fields) > 0 {
		sub = strings.ToLower(fields[0])
	}

	var (
		text string
		err  error
	)
	switch sub {
	case "start":
		err = h.dispatch(ctx, service.InboundEvent{Type: shift.EventStart, ExternalUserID: userID, ChannelID: channelID})
	case "end":
		err = h.dispatch(ctx, service.InboundEvent{Type: shift.EventEnd, ExternalUserID: userID, ChannelID: channelID})
	case "finish":
		err = h.dispatch(ctx, service.InboundEvent{Type: shift.EventFinish, ExternalUserID: userID, ChannelID: channelID})
	case "status":
		text, err = h.accounts.Status(ctx, userID)
	case "tasks":
		text, err = h.accounts.TasksToday(ctx, userID)
	case "history":
		text, err = h.accounts.History(ctx, userID)
	case "activate":
		token := ""
		if len(fields) > 1 {
			token = fields[1]
		}
		text, err = h.accounts.Activate(ctx, service.Identity{
			ExternalUserID: userID,
			Username:       r.FormValue("user_name"),
			ChannelID:      channelID,
		}, token)
	default:
		writeJSON(w, SlashResponse{
			ResponseType: "ephemeral",
			Text:         i18n.T(ctx, "help"),
			Attachments:  []mattermost.Attachment{{Actions: h.menu(ctx, userID)}},
		})
		return
	}

	if err != nil {
		text = errorText(ctx, err)
	}
	writeJSON(w, SlashResponse{ResponseType: "ephemeral", Text: text})
}

func (h *ShiftHandler) menu(ctx context.Context, userID string) []mattermost.Action {
	var sig string
	if h.slashToken != "" {
		var err error
		if sig, err = auth.SignAction(h.slashToken, userID); err != nil {
			log.Printf("ERROR sign menu for %s: %v", userID, err)
		}
	}
	item := func(label, action string) mattermost.Action {
		data := map[string]any{"action": action}
		if sig != "" {
			data[auth.ActionContextKey] = sig
		}
		return mattermost.Action{Name: label, Type: "button", Integration: mattermost.Integration{
			URL:     h.botURL + "/api/shift/" + action,
			Context: data,
		}}
	}
	return []mattermost.Action{
		item(i18n.T(ctx, "button_start"), "start"),
		item(i18n.T(ctx, "button_end"), "end"),
		item(i18n.T(ctx, "button_finish"), "finish"),
	}
}

// action returns an interactive action handler for a fixed event type.
func (h *ShiftHandler) action(typ shift.EventType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if !h.enabled {
			writeJSON(w, ActionResponse{})
			return
		}
		if !h.actionAuthorized(req) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := h.localeCtx(r.Context(), req.UserID)

		in := service.InboundEvent{Type: typ, ExternalUserID: req.UserID, ChannelID: req.ChannelID}
		if typ == shift.EventSelectObject {
			raw, _ := req.Context["object_id"].(string)
			id, err := bson.ObjectIDFromHex(raw)
			if err != nil {
				writeJSON(w, ActionResponse{EphemeralText: i18n.T(ctx, "reject_"+shift.RejectUnknownObject)})
				return
			}
			in.ObjectID = id
		}

		if err := h.dispatch(ctx, in); err != nil {
			writeJSON(w, ActionResponse{EphemeralText: errorText(ctx, err)})
			return
		}
		writeJSON(w, ActionResponse{})
	}
}

// HandleEvent accepts a structured event and reports the resulting state.
func (h *ShiftHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.enabled {
		w.WriteHeader(http.StatusOK)
		return
	}

	in := service.InboundEvent{
		Type:           shift.EventType(req.Type),
		ExternalUserID: req.UserID,
		ChannelID:      req.ChannelID,
		PhotoIDs:       req.FileIDs,
	}
	if req.Latitude != nil && req.Longitude != nil {
		in.Location = &model.GeoPoint{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	if req.ObjectID != "" {
		id, err := bson.ObjectIDFromHex(req.ObjectID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_object_id")
			return
		}
		in.ObjectID = id
	}

	res, err := h.events.Handle(h.localeCtx(r.Context(), req.UserID), in)
	if err != nil {
		log.Printf("ERROR handle %s event for %s: %v", req.Type, req.UserID, err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	resp := EventResponse{From: res.From.String(), State: res.Next.String()}
	if res.Rejection != nil {
		resp.Rejection = res.Rejection.Code
	}
	writeJSON(w, resp)
}

// HandlePhotoWebhook receives the Mattermost outgoing webhook fired by posts with attachments.
func (h *ShiftHandler) HandlePhotoWebhook(w http.ResponseWriter, r *http.Request) {
	hook, err := parseOutgoingWebhook(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if h.slashToken != "" && hook.Token != h.slashToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.enabled || len(hook.FileIDs) == 0 {
		writeJSON(w, map[string]string{})
		return
	}

	ctx := h.localeCtx(r.Context(), hook.UserID)
	if err := h.dispatch(ctx, service.InboundEvent{
		Type:           shift.EventPhoto,
		ExternalUserID: hook.UserID,
		ChannelID:      hook.ChannelID,
		PhotoIDs:       hook.FileIDs,
	}); err != nil {
		log.Printf("ERROR photo webhook for %s: %v", hook.UserID, err)
	}
	writeJSON(w, map[string]string{})
}

// dispatch hands an event to the shift service. Rejections are already delivered to the chat.
func (h *ShiftHandler) dispatch(ctx context.Context, in service.InboundEvent) error {
	_, err := h.events.Handle(ctx, in)
	return err
}

// actionAuthorized checks that a button click comes from the user the button was sent to.
func (h *ShiftHandler) actionAuthorized(req ActionRequest) bool {
	if h.slashToken == "" {
		return true
	}
	sig, _ := req.Context[auth.ActionContextKey].(string)
	return auth.VerifyAction(h.slashToken, req.UserID, sig)
}

func (h *ShiftHandler) authorized(r *http.Request) bool {
	return h.slashToken == "" || bearerToken(r.Header.Get("Authorization")) == h.slashToken
}

// RegisterRoutes registers all shift routes on the given router.
func (h *ShiftHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/shift", h.HandleSlashCommand)
	r.Post("/api/shift/start", h.action(shift.EventStart))
	r.Post("/api/shift/end", h.action(shift.EventEnd))
	r.Post("/api/shift/select", h.action(shift.EventSelectObject))
	r.Post("/api/shift/finish", h.action(shift.EventFinish))
	r.Post("/api/shift/events", h.HandleEvent)
	r.Post("/api/shift/photos", h.HandlePhotoWebhook)
}

func errorText(ctx context.Context, err error) string {
	var rej *shift.Rejection
	if errors.As(err, &rej) {
		return i18n.T(ctx, rej.MessageID())
	}
	log.Printf("ERROR %v", err)
	return i18n.T(ctx, "error_generic")
}
