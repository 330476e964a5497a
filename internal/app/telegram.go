package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/scenariobot/core/chat"
	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/core/scenario"
	"github.com/m3rciful/scenariobot/core/session"
	"github.com/m3rciful/scenariobot/core/storage"
	coretelegram "github.com/m3rciful/scenariobot/core/telegram"
	"github.com/m3rciful/scenariobot/core/telegram/callbacks"
	"github.com/m3rciful/scenariobot/core/telegram/format"
	tghelpers "github.com/m3rciful/scenariobot/core/telegram/helpers"
	"github.com/m3rciful/scenariobot/core/telegram/keyboard"
	"github.com/m3rciful/scenariobot/core/telegram/middleware"
	"github.com/m3rciful/scenariobot/core/telegram/router"
)

// Conversations is what the Telegram handlers need from the chat service.
type Conversations interface {
	Turn(ctx context.Context, req chat.Request) (chat.Reply, error)
	Reset(ctx context.Context, botID int64, key string) (chat.State, error)
	State(ctx context.Context, botID int64, key string) (chat.State, error)
	ActiveScenario(ctx context.Context, botID int64) (storage.Scenario, *scenario.Definition, error)
	ReplaceScenario(ctx context.Context, botID int64, name string, data []byte) (storage.Scenario, error)
}

const (
	cbRestart = "restart"

	// maxScenarioUpload bounds an uploaded scenario file.
	maxScenarioUpload = 1 << 20
	keywordsPerRow    = 2
)

const (
	textStarted     = "Начнём! Напишите сообщение, и я отвечу."
	textReset       = "Диалог сброшен. Начинаем сначала."
	textFinished    = "Диалог завершён. Нажмите кнопку, чтобы начать заново."
	textRestartBtn  = "Начать заново"
	textAdminOnly   = "Команда доступна только администратору."
	textUploadAdmin = "Загружать сценарии может только администратор."
	textNotJSON     = "Пришлите сценарий в виде файла .json."
	textTooLarge    = "Файл сценария слишком большой."
	textRateLimited = "Слишком много сообщений. Подождите немного."
	textFailed      = "Извините, произошла ошибка. Попробуйте позже."
)

type handlers struct {
	chat    Conversations
	botID   int64
	adminID int64
	// fetch downloads an uploaded file; tests replace it.
	fetch func(c tele.Context, f *tele.File) (io.ReadCloser, error)
}

func (h *handlers) register() (*coretelegram.Registry, []coretelegram.Route, error) {
	reg := coretelegram.NewRegistry()
	reg.RegisterCommand("/start", coretelegram.Command{Handler: h.start, Description: "Начать диалог"})
	reg.RegisterCommand("/reset", coretelegram.Command{Handler: h.reset, Description: "Сбросить диалог"})
	reg.RegisterCommand("/state", coretelegram.Command{Handler: h.state, Description: "Текущее состояние"})
	reg.RegisterCommand("/scenario", coretelegram.Command{Handler: h.scenario, Description: "Активный сценарий", AdminOnly: true})
	if err := reg.RegisterCallback(cbRestart, h.restart); err != nil {
		return nil, nil, err
	}
	reg.SetTextFallback(h.turn)
	reg.SetDocumentHandler(h.upload)

	opts := router.CommandRouteOptions{AdminID: h.adminID, OnAdminReject: h.adminRejected}
	routes := router.CommandRoutes(reg, opts)
	routes = append(routes, router.TextRoutes(reg, opts)...)
	routes = append(routes, router.CallbackRoute(reg))
	return reg, routes, nil
}

func sessionKey(c tele.Context) (string, bool) {
	chat := c.Chat()
	if chat == nil {
		return "", false
	}
	return session.TelegramKey(chat.ID), true
}

func (h *handlers) start(c tele.Context) error   { return h.resetWith(c, textStarted) }
func (h *handlers) reset(c tele.Context) error   { return h.resetWith(c, textReset) }
func (h *handlers) restart(c tele.Context) error { return h.resetWith(c, textReset) }

func (h *handlers) resetWith(c tele.Context, text string) error {
	key, ok := sessionKey(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	if c.Callback() != nil {
		// Restart buttons carry the scenario they were shown for.
		if id, err := callbacks.PayloadInt64(c); err == nil {
			ctx = logger.WithScenario(ctx, h.botID, id)
		}
	}
	st, err := h.chat.Reset(ctx, h.botID, key)
	if err != nil {
		return h.fail(c, "reset", err)
	}
	return tghelpers.SendText(c, text, keyboard.Suggestions(st.Keywords, keywordsPerRow))
}

func (h *handlers) state(c tele.Context) error {
	key, ok := sessionKey(c)
	if !ok {
		return nil
	}
	st, err := h.chat.State(tghelpers.BuildContext(c), h.botID, key)
	if err != nil {
		return h.fail(c, "state", err)
	}
	return tghelpers.SendMDV2(c, renderState(st))
}

func renderState(st chat.State) string {
	keywords := "нет"
	if len(st.Keywords) > 0 {
		keywords = strings.Join(st.Keywords, ", ")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Состояние:* `%s`\n", format.V2(st.CurrentState))
	fmt.Fprintf(&b, "*Сценарий:* %s\n", format.V2(strconv.FormatInt(st.ScenarioID, 10)))
	fmt.Fprintf(&b, "*Ключевые слова:* %s\n", format.V2(keywords))
	fmt.Fprintf(&b, "*Сообщений в истории:* %d", st.HistoryLen)
	if st.IsFinished {
		b.WriteString("\n_Диалог завершён_")
	}
	return b.String()
}

func (h *handlers) scenario(c tele.Context) error {
	sc, _, err := h.chat.ActiveScenario(tghelpers.BuildContext(c), h.botID)
	if err != nil {
		return h.fail(c, "scenario", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, []byte(sc.Data), "", "  "); err != nil {
		return h.fail(c, "scenario", err)
	}
	caption := fmt.Sprintf("%s (id %d)", sc.Name, sc.ID)
	return tghelpers.SendDocument(c, fmt.Sprintf("scenario-%d.json", sc.ID), pretty.Bytes(), caption)
}

func (h *handlers) upload(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Document == nil {
		return nil
	}
	if !middleware.IsAdmin(middleware.AdminOptions{AdminID: h.adminID}, c) {
		return tghelpers.SendText(c, textUploadAdmin)
	}
	doc := msg.Document
	if !strings.EqualFold(path.Ext(doc.FileName), ".json") && doc.MIME != "application/json" {
		return tghelpers.SendText(c, textNotJSON)
	}
	if doc.FileSize > maxScenarioUpload {
		return tghelpers.SendText(c, textTooLarge)
	}

	ctx := tghelpers.BuildContext(c)
	fetch := h.fetch
	if fetch == nil {
		fetch = func(c tele.Context, f *tele.File) (io.ReadCloser, error) { return c.Bot().File(f) }
	}
	rc, err := fetch(c, &doc.File)
	if err != nil {
		return h.fail(c, "upload", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxScenarioUpload+1))
	if err != nil {
		return h.fail(c, "upload", err)
	}
	if len(data) > maxScenarioUpload {
		return tghelpers.SendText(c, textTooLarge)
	}

	name := strings.TrimSuffix(doc.FileName, path.Ext(doc.FileName))
	if strings.TrimSpace(name) == "" {
		name = "uploaded"
	}
	sc, err := h.chat.ReplaceScenario(ctx, h.botID, name, data)
	var verr *scenario.ValidationError
	switch {
	case errors.As(err, &verr):
		return tghelpers.SendText(c, "Сценарий отклонён: "+verr.Error())
	case err != nil:
		return h.fail(c, "upload", err)
	}
	return tghelpers.SendText(c, fmt.Sprintf("Сценарий «%s» активирован (id %d).", sc.Name, sc.ID))
}

func (h *handlers) turn(c tele.Context) error {
	key, ok := sessionKey(c)
	if !ok {
		return nil
	}
	reply, err := h.chat.Turn(tghelpers.BuildContext(c), chat.Request{
		BotID:      h.botID,
		SessionKey: key,
		Message:    c.Text(),
	})
	switch {
	case errors.Is(err, chat.ErrInvalidMessage):
		return tghelpers.SendText(c, fmt.Sprintf("Сообщение должно содержать от 1 до %d символов.", chat.MaxMessageLength))
	case err != nil:
		return h.fail(c, "turn", err)
	}

	if err := tghelpers.SendText(c, reply.Response, keyboard.Suggestions(reply.Keywords, keywordsPerRow)); err != nil {
		return err
	}
	if reply.IsFinished {
		return tghelpers.SendText(c, textFinished, keyboard.Single(keyboard.InlineBtn{
			Text:   textRestartBtn,
			Unique: cbRestart,
			Data:   strconv.FormatInt(reply.ScenarioID, 10),
		}))
	}
	return nil
}

func (h *handlers) adminRejected(c tele.Context) error {
	return tghelpers.SendText(c, textAdminOnly)
}

func (h *handlers) rateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: textRateLimited})
	}
	return tghelpers.SendText(c, textRateLimited)
}

func (h *handlers) fail(c tele.Context, op string, err error) error {
	logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelError, "handler."+op,
		slog.String("status", "fail"),
		slog.Any("err", err),
	)
	return tghelpers.SendText(c, textFailed)
}
