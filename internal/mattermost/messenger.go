package mattermost

import (
	"context"
	"fmt"
	"path"
)

// Button is a one-shot prompt option. URL is the bot endpoint the click is posted to.
type Button struct {
	Label   string
	URL     string
	Context map[string]any
}

// Messenger adapts the client to the outbound operations the shift service uses.
// Every method addresses an opaque channel id.
type Messenger struct {
	client *Client
}

func NewMessenger(client *Client) *Messenger {
	return &Messenger{client: client}
}

func (m *Messenger) SendText(ctx context.Context, channelID, text string) error {
	_, err := m.client.CreatePost(ctx, &Post{ChannelID: channelID, Message: text})
	return err
}

func (m *Messenger) SendPrompt(ctx context.Context, channelID, text string, buttons []Button) error {
	actions := make([]Action, 0, len(buttons))
	for _, b := range buttons {
		actions = append(actions, Action{
			Name:        b.Label,
			Type:        "button",
			Integration: Integration{URL: b.URL, Context: b.Context},
		})
	}
	_, err := m.client.CreatePost(ctx, &Post{
		ChannelID: channelID,
		Message:   text,
		Props:     Props{Attachments: []Attachment{{Actions: actions}}},
	})
	return err
}

// SendLocation posts a coordinate pin as a map link.
func (m *Messenger) SendLocation(ctx context.Context, channelID string, lat, lon float64) error {
	link := fmt.Sprintf("https://www.openstreetmap.org/?mlat=%.6f&mlon=%.6f#map=18/%.6f/%.6f", lat, lon, lat, lon)
	_, err := m.client.CreatePost(ctx, &Post{
		ChannelID: channelID,
		Props: Props{Attachments: []Attachment{{
			Title:     fmt.Sprintf("%.6f, %.6f", lat, lon),
			TitleLink: link,
		}}},
	})
	return err
}

func (m *Messenger) SendPhoto(ctx context.Context, channelID string, data []byte, filename, caption string) error {
	fileID, err := m.client.UploadFile(ctx, channelID, path.Base(filename), data)
	if err != nil {
		return err
	}
	_, err = m.client.CreatePost(ctx, &Post{ChannelID: channelID, Message: caption, FileIDs: []string{fileID}})
	return err
}

// FetchPhoto downloads a file posted by a worker.
func (m *Messenger) FetchPhoto(ctx context.Context, fileID string) ([]byte, string, error) {
	info, err := m.client.GetFileInfo(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	data, err := m.client.DownloadFile(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	return data, info.MimeType, nil
}
