package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/core/storage"
)

// Labels of rendered steps.
const (
	UserInputLabel   = "Ввод пользователя: "
	BotResponseLabel = "Вывод бота: "
)

// RenderSteps renders steps fetched most recent first as chronological dialogue lines.
func RenderSteps(recentFirst []storage.Step) string {
	lines := make([]string, 0, len(recentFirst))
	for i := len(recentFirst) - 1; i >= 0; i-- {
		st := recentFirst[i]
		switch st.Type {
		case storage.StepUserInput:
			lines = append(lines, UserInputLabel+st.Content)
		case storage.StepBotResponse:
			lines = append(lines, BotResponseLabel+st.Content)
		}
	}
	return strings.Join(lines, "\n")
}

func (s *Service) recentContext(ctx context.Context, scenarioID int64, key string, limit int) string {
	steps, err := s.repo.RecentSteps(ctx, scenarioID, key, limit)
	if err != nil {
		logger.LogEvent(ctx, s.log, slog.LevelWarn, "steps.recent",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
		return ""
	}
	return RenderSteps(steps)
}
