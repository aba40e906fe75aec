package dispatch

import (
	"waba-gateway/internal/apperrors"
	"waba-gateway/internal/models"
	"waba-gateway/internal/whatsapp"
)

// MediaKind is the subset of provider media types the gateway sends.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaDocument MediaKind = "document"
	MediaAudio    MediaKind = "audio"
	MediaVideo    MediaKind = "video"
)

type TextPayload struct {
	Body             string `json:"body"`
	PreviewURL       bool   `json:"preview_url,omitempty"`
	ReplyToMessageID string `json:"reply_to_message_id,omitempty"`
}

type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type TemplateComponent struct {
	Type       string              `json:"type"`
	SubType    string              `json:"sub_type,omitempty"`
	Index      string              `json:"index,omitempty"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

type TemplatePayload struct {
	Name         string              `json:"name"`
	LanguageCode string              `json:"language_code"`
	Components   []TemplateComponent `json:"components,omitempty"`
}

type MediaPayload struct {
	Kind     MediaKind `json:"kind"`
	Link     string    `json:"link,omitempty"`
	MediaID  string    `json:"media_id,omitempty"`
	Caption  string    `json:"caption,omitempty"`
	Filename string    `json:"filename,omitempty"`
}

// Payload is the tagged union over the gateway's message capabilities.
// Exactly one variant must be set.
type Payload struct {
	Text     *TextPayload     `json:"text,omitempty"`
	Template *TemplatePayload `json:"template,omitempty"`
	Media    *MediaPayload    `json:"media,omitempty"`
}

func (p Payload) Kind() (models.MessageType, error) {
	set := 0
	var kind models.MessageType
	if p.Text != nil {
		set++
		kind = models.MessageTypeText
	}
	if p.Template != nil {
		set++
		kind = models.MessageTypeTemplate
	}
	if p.Media != nil {
		set++
		kind = models.MessageTypeMedia
	}
	if set != 1 {
		return "", apperrors.NewValidation("payload must carry exactly one of text, template or media")
	}
	return kind, nil
}

func (p Payload) validate() error {
	kind, err := p.Kind()
	if err != nil {
		return err
	}

	switch kind {
	case models.MessageTypeText:
		if p.Text.Body == "" {
			return apperrors.NewValidation("text body is required")
		}
	case models.MessageTypeTemplate:
		if p.Template.Name == "" {
			return apperrors.NewValidation("template name is required")
		}
		if p.Template.LanguageCode == "" {
			return apperrors.NewValidation("template language_code is required")
		}
	case models.MessageTypeMedia:
		switch p.Media.Kind {
		case MediaImage, MediaDocument, MediaAudio, MediaVideo:
		default:
			return apperrors.NewValidation("media kind must be image, document, audio or video, got %q", p.Media.Kind)
		}
		if p.Media.Link == "" && p.Media.MediaID == "" {
			return apperrors.NewValidation("media payload needs a link or a media_id")
		}
	}
	return nil
}

// toProviderMessage renders the payload into the provider's wire shape.
func (p Payload) toProviderMessage(to string) whatsapp.GenericMessage {
	msg := whatsapp.GenericMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
	}

	switch {
	case p.Text != nil:
		msg.Type = "text"
		msg.Text = &whatsapp.TextObj{
			Body:       p.Text.Body,
			PreviewUrl: p.Text.PreviewURL,
		}
		if p.Text.ReplyToMessageID != "" {
			msg.Context = &whatsapp.ContextObj{MessageID: p.Text.ReplyToMessageID}
		}

	case p.Template != nil:
		tmpl := &whatsapp.TemplateObj{
			Name:     p.Template.Name,
			Language: whatsapp.LanguageObj{Code: p.Template.LanguageCode},
		}
		for _, comp := range p.Template.Components {
			c := whatsapp.ComponentObj{
				Type:    comp.Type,
				SubType: comp.SubType,
				Index:   comp.Index,
			}
			for _, param := range comp.Parameters {
				c.Parameters = append(c.Parameters, whatsapp.ParameterObj{
					Type: param.Type,
					Text: param.Text,
				})
			}
			tmpl.Components = append(tmpl.Components, c)
		}
		msg.Type = "template"
		msg.Template = tmpl

	case p.Media != nil:
		media := &whatsapp.MediaObj{
			ID:      p.Media.MediaID,
			Link:    p.Media.Link,
			Caption: p.Media.Caption,
		}
		msg.Type = string(p.Media.Kind)
		switch p.Media.Kind {
		case MediaImage:
			msg.Image = media
		case MediaVideo:
			msg.Video = media
		case MediaAudio:
			msg.Audio = media
		case MediaDocument:
			media.Filename = p.Media.Filename
			msg.Document = media
		}
	}

	return msg
}
