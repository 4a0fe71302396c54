// Package chatapi is a small REST client for the locally running chat
// application: bot management, stream subscription, and messaging. Every
// operation the screenshot flow needs is idempotent, so partial runs are
// always safe to repeat.
package chatapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/teamchat/docshots/packages/httpc"
	"github.com/tidwall/gjson"
)

// Bot is a bot account owned by the admin user.
type Bot struct {
	UserID   int64
	Email    string
	FullName string
	APIKey   string
}

// Client talks to the chat application's REST API as the admin account.
type Client struct {
	http    *httpc.Client
	baseURL string
	email   string
	apiKey  string
}

func NewClient(httpClient *httpc.Client, siteURL, adminEmail, adminAPIKey string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(siteURL, "/") + "/api/v1",
		email:   adminEmail,
		apiKey:  adminAPIKey,
	}
}

func basicAuth(email, apiKey string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(email+":"+apiKey))
}

func (c *Client) authHeaders() map[string]string {
	return map[string]string{"Authorization": basicAuth(c.email, c.apiKey)}
}

// call issues a request and fails on transport errors or non-success
// API results.
func (c *Client) call(ctx context.Context, method, path string, headers map[string]string, body []byte) (gjson.Result, error) {
	merged := c.authHeaders()
	for k, v := range headers {
		merged[k] = v
	}

	resp, err := c.http.Do(ctx, method, c.baseURL+path, merged, body)
	if err != nil {
		return gjson.Result{}, err
	}

	if !resp.IsSuccess() {
		return gjson.Result{}, fmt.Errorf("%s %s failed with %s: %s", method, path, resp.Status, resp.BodyString())
	}

	return gjson.ParseBytes(resp.Body), nil
}

func formBody(values url.Values) ([]byte, map[string]string) {
	return []byte(values.Encode()), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	}
}

// GetOrCreateBot returns the bot registered under shortName, creating it
// with the given display name when absent. Calling it twice for the same
// integration yields the same bot.
func (c *Client) GetOrCreateBot(ctx context.Context, shortName, fullName string) (*Bot, error) {
	result, err := c.call(ctx, "GET", "/bots", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("listing bots: %w", err)
	}

	var found *Bot
	result.Get("bots").ForEach(func(_, b gjson.Result) bool {
		if b.Get("short_name").String() == shortName {
			found = botFromJSON(b)
			return false
		}
		return true
	})
	if found != nil {
		return found, nil
	}

	body, headers := formBody(url.Values{
		"short_name": {shortName},
		"full_name":  {fullName},
	})
	result, err = c.call(ctx, "POST", "/bots", headers, body)
	if err != nil {
		return nil, fmt.Errorf("creating bot %q: %w", shortName, err)
	}

	return botFromJSON(result.Get("bot")), nil
}

func botFromJSON(b gjson.Result) *Bot {
	return &Bot{
		UserID:   b.Get("user_id").Int(),
		Email:    b.Get("email").String(),
		FullName: b.Get("full_name").String(),
		APIKey:   b.Get("api_key").String(),
	}
}

// UploadAvatar sets the bot's avatar from an image file on disk.
func (c *Client) UploadAvatar(ctx context.Context, bot *Bot, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open avatar %s: %w", path, err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("avatar", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	headers := map[string]string{"Content-Type": writer.FormDataContentType()}
	botPath := "/bots/" + strconv.FormatInt(bot.UserID, 10) + "/avatar"
	if _, err := c.call(ctx, "POST", botPath, headers, body.Bytes()); err != nil {
		return fmt.Errorf("uploading avatar for %s: %w", bot.Email, err)
	}
	return nil
}

// EnsureStream creates the stream if needed and subscribes the given
// accounts to it. The server treats both as no-ops when already done.
func (c *Client) EnsureStream(ctx context.Context, name string, subscriberEmails ...string) error {
	body, headers := formBody(url.Values{
		"stream":      {name},
		"subscribers": {strings.Join(subscriberEmails, ",")},
	})
	if _, err := c.call(ctx, "POST", "/streams", headers, body); err != nil {
		return fmt.Errorf("ensuring stream %q: %w", name, err)
	}
	return nil
}

// botMessageIDs lists ids of messages sent by the bot, newest first.
func (c *Client) botMessageIDs(ctx context.Context, bot *Bot) ([]int64, error) {
	path := "/messages?sender=" + url.QueryEscape(bot.Email) + "&order=newest"
	result, err := c.call(ctx, "GET", path, nil, nil)
	if err != nil {
		return nil, err
	}

	var ids []int64
	result.Get("messages").ForEach(func(_, m gjson.Result) bool {
		ids = append(ids, m.Get("id").Int())
		return true
	})
	return ids, nil
}

// DeleteBotMessages removes every message the bot has sent, so the next
// capture targets exactly one freshly created message.
func (c *Client) DeleteBotMessages(ctx context.Context, bot *Bot) error {
	ids, err := c.botMessageIDs(ctx, bot)
	if err != nil {
		return fmt.Errorf("listing messages for %s: %w", bot.Email, err)
	}

	for _, id := range ids {
		path := "/messages/" + strconv.FormatInt(id, 10)
		if _, err := c.call(ctx, "DELETE", path, nil, nil); err != nil {
			return fmt.Errorf("deleting message %d: %w", id, err)
		}
	}
	return nil
}

// LastBotMessage returns the id of the newest message the bot has sent.
// ok is false when the bot has no messages at all.
func (c *Client) LastBotMessage(ctx context.Context, bot *Bot) (id int64, ok bool, err error) {
	ids, err := c.botMessageIDs(ctx, bot)
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

// SendMessage posts a stream message as the bot, bypassing webhook
// request construction. Used by direct integrations.
func (c *Client) SendMessage(ctx context.Context, bot *Bot, stream, topic, content string) error {
	body, headers := formBody(url.Values{
		"type":    {"stream"},
		"to":      {stream},
		"topic":   {topic},
		"content": {content},
	})
	// Sent with the bot's own credentials so the message renders under
	// the bot identity.
	headers["Authorization"] = basicAuth(bot.Email, bot.APIKey)

	if _, err := c.call(ctx, "POST", "/messages", headers, body); err != nil {
		return fmt.Errorf("sending message as %s: %w", bot.Email, err)
	}
	return nil
}
