package gateway

import (
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramGateway struct {
	Bot *tgbotapi.BotAPI
}

func NewTelegramGateway(token string) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{Bot: bot}, nil
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err = tg.Bot.Send(msg)
	return err
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chat ID: %q", chatID)
	}
	return id, nil
}
