package gateway

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Discord rejects message content longer than this.
const discordMaxLen = 2000

type DiscordGateway struct {
	Session *discordgo.Session
}

// NewDiscordGateway creates a REST-only session. Open is never called.
func NewDiscordGateway(token string) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordGateway{Session: s}, nil
}

func (dg *DiscordGateway) Send(channelID string, text string) error {
	if channelID == "" {
		return fmt.Errorf("missing discord channel ID")
	}
	if r := []rune(text); len(r) > discordMaxLen {
		text = string(r[:discordMaxLen-1]) + "…"
	}
	_, err := dg.Session.ChannelMessageSend(channelID, text)
	return err
}
