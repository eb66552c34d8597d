// Package protocol defines the JSON events pushed to live viewers. Every
// message is one JSON object with a "type" discriminator.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/qepting91/tagstream/internal/domain"
)

const (
	TypeConnection = "connection"
	TypeSettings   = "settings"
	TypePost       = "post"
	TypeError      = "error"
)

const (
	StatusConnected = "connected"
	StatusStopped   = "stopped"
)

type ConnectionMsg struct {
	Type             string              `json:"type"`
	Status           string              `json:"status"`
	ConnectedClients int                 `json:"connectedClients"`
	Settings         domain.FeedSettings `json:"settings"`
}

type SettingsMsg struct {
	Type     string              `json:"type"`
	Settings domain.FeedSettings `json:"settings"`
}

type PostMsg struct {
	Type string               `json:"type"`
	Data domain.CanonicalPost `json:"data"`
}

type ErrorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type Base struct {
	Type string `json:"type"`
}

// DecodeType reads only the discriminator of a message.
func DecodeType(b []byte) (string, error) {
	var base Base
	if err := json.Unmarshal(b, &base); err != nil {
		return "", fmt.Errorf("decode message type: %w", err)
	}
	return base.Type, nil
}

func NewConnection(status string, clients int, settings domain.FeedSettings) ConnectionMsg {
	return ConnectionMsg{Type: TypeConnection, Status: status, ConnectedClients: clients, Settings: settings}
}

func NewSettings(settings domain.FeedSettings) SettingsMsg {
	return SettingsMsg{Type: TypeSettings, Settings: settings}
}

func NewPost(post domain.CanonicalPost) PostMsg {
	return PostMsg{Type: TypePost, Data: post}
}

func NewError(err error) ErrorMsg {
	return ErrorMsg{Type: TypeError, Error: err.Error()}
}
