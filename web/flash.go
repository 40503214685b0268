package web

import (
	"encoding/base64"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
)

const flashCookie = "flash"

// Flash categories, matching the CSS classes of the layout.
const (
	flashSuccess = "success"
	flashInfo    = "info"
	flashWarning = "warning"
	flashDanger  = "danger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// flashMessage is a one-shot message shown on the next rendered page.
type flashMessage struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

func flash(category, message string) flashMessage {
	return flashMessage{Category: category, Message: message}
}

func encodeFlashes(messages []flashMessage) (string, error) {
	raw, err := json.Marshal(messages)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeFlashes(value string) ([]flashMessage, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	var messages []flashMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// redirect answers a form post: the messages are stored in the flash cookie
// and the browser is sent to the given path.
func redirect(c echo.Context, to string, messages ...flashMessage) error {
	if len(messages) > 0 {
		value, err := encodeFlashes(messages)
		if err != nil {
			return err
		}
		c.SetCookie(&http.Cookie{
			Name:     flashCookie,
			Value:    value,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return c.Redirect(http.StatusSeeOther, to)
}

// popFlashes reads and clears the pending flash messages.
func popFlashes(c echo.Context) []flashMessage {
	cookie, err := c.Cookie(flashCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	c.SetCookie(&http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	messages, err := decodeFlashes(cookie.Value)
	if err != nil {
		return nil
	}
	return messages
}
