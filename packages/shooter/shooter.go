// Package shooter orchestrates one documentation screenshot: bot and
// stream setup, fixture delivery, and capture of the resulting message.
package shooter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/teamchat/docshots/packages/capture"
	"github.com/teamchat/docshots/packages/chatapi"
	"github.com/teamchat/docshots/packages/fixture"
	"github.com/teamchat/docshots/packages/httpc"
	"github.com/teamchat/docshots/packages/manifest"
	"github.com/teamchat/docshots/packages/registry"
	"github.com/teamchat/docshots/packages/request"
)

// ErrServerUnreachable means the local application is not running at all.
// This is a precondition failure, not a transient fault: nothing retries.
var ErrServerUnreachable = errors.New("cannot connect to the local server")

// ErrBadFixture means a fixture is missing fields the delivery path
// requires.
var ErrBadFixture = errors.New("malformed fixture")

// Status is the terminal state of one screenshot item.
type Status int

const (
	// StatusCaptured means the message was delivered and the image written.
	StatusCaptured Status = iota
	// StatusDeliveryFailed means the webhook answered non-2xx; capture was
	// skipped and the batch continues.
	StatusDeliveryFailed
	// StatusCaptureSkipped means delivery reported success but no message
	// was found afterwards.
	StatusCaptureSkipped
)

// Result is the outcome of one integration+fixture item.
type Result struct {
	Integration    string
	Fixture        string
	ImagePath      string
	Status         Status
	Target         string // webhook URL the fixture was posted to
	ResponseStatus int
	ResponseBody   string
	Duration       time.Duration
}

// Failed reports whether the item should count as a failure for the
// overall exit status.
func (r *Result) Failed() bool {
	return r.Status == StatusDeliveryFailed
}

// Shooter holds the collaborators shared by all items of a run.
type Shooter struct {
	http        *httpc.Client
	chat        *chatapi.Client
	capture     *capture.Runner
	store       *manifest.Store // nil disables manifest recording
	runID       string
	siteURL     string
	fixturesDir string
	imageDir    string
	adminEmail  string
}

type Option func(*Shooter)

// WithManifest enables run recording into the given store.
func WithManifest(store *manifest.Store) Option {
	return func(s *Shooter) {
		s.store = store
		s.runID = manifest.NewRunID()
	}
}

func New(httpClient *httpc.Client, chat *chatapi.Client, capt *capture.Runner, siteURL, fixturesDir, imageDir, adminEmail string, opts ...Option) *Shooter {
	s := &Shooter{
		http:        httpClient,
		chat:        chat,
		capture:     capt,
		siteURL:     siteURL,
		fixturesDir: fixturesDir,
		imageDir:    imageDir,
		adminEmail:  adminEmail,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shoot runs the full sequence for one screenshot config. Item-level
// delivery failures come back in the Result with a nil error; returned
// errors are fatal for the whole invocation.
func (s *Shooter) Shoot(ctx context.Context, i *registry.Integration, cfg registry.ScreenshotConfig) (*Result, error) {
	start := time.Now()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f, err := fixture.Load(s.fixturesDir, i.Name, cfg.FixtureName)
	if err != nil {
		return nil, err
	}

	bot, err := s.setup(ctx, i, cfg)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Integration: i.Name,
		Fixture:     cfg.FixtureName,
		ImagePath:   s.imagePath(i, cfg),
	}

	if i.IsWebhook() {
		delivered, err := s.deliverWebhook(ctx, i, f, cfg, bot, result)
		if err != nil {
			return nil, err
		}
		if !delivered {
			result.Status = StatusDeliveryFailed
			result.Duration = time.Since(start)
			s.record(result, 0)
			return result, nil
		}
	} else {
		if err := s.deliverDirect(ctx, i, f, bot); err != nil {
			return nil, err
		}
	}

	messageID, found, err := s.chat.LastBotMessage(ctx, bot)
	if err != nil {
		return nil, err
	}
	if !found {
		result.Status = StatusCaptureSkipped
		result.Duration = time.Since(start)
		s.record(result, 0)
		return result, nil
	}

	if err := s.capture.Capture(ctx, messageID, result.ImagePath, s.siteURL); err != nil {
		return nil, err
	}

	result.Status = StatusCaptured
	result.Duration = time.Since(start)
	s.record(result, messageID)
	return result, nil
}

// setup makes sure the bot, its avatar, and the target stream exist, and
// clears prior bot messages. Every step is idempotent.
func (s *Shooter) setup(ctx context.Context, i *registry.Integration, cfg registry.ScreenshotConfig) (*chatapi.Bot, error) {
	botName := cfg.BotName
	if botName == "" {
		botName = i.DisplayName + " Bot"
	}

	bot, err := s.chat.GetOrCreateBot(ctx, i.Name+"-bot", botName)
	if err != nil {
		return nil, s.wrapConnErr(err)
	}

	if i.BotAvatarPath != "" {
		if _, statErr := os.Stat(i.BotAvatarPath); statErr == nil {
			if err := s.chat.UploadAvatar(ctx, bot, i.BotAvatarPath); err != nil {
				return nil, err
			}
		}
	}

	stream := i.Stream
	if stream == "" {
		stream = request.DefaultStream
	}
	if err := s.chat.EnsureStream(ctx, stream, bot.Email, s.adminEmail); err != nil {
		return nil, err
	}

	if err := s.chat.DeleteBotMessages(ctx, bot); err != nil {
		return nil, err
	}

	return bot, nil
}

// deliverWebhook sends the constructed request. The bool reports whether
// the webhook accepted it; false is the non-fatal item failure path.
func (s *Shooter) deliverWebhook(ctx context.Context, i *registry.Integration, f *fixture.Fixture, cfg registry.ScreenshotConfig, bot *chatapi.Bot, result *Result) (bool, error) {
	headers := fixture.ResolveHeaders(i, f.Name, cfg.CustomHeaders)

	req, err := request.Build(s.siteURL, i, f, cfg, headers, bot.Email, bot.APIKey)
	if err != nil {
		return false, err
	}

	result.Target = req.TargetURL()
	resp, err := s.http.Post(ctx, result.Target, req.Headers, req.Body)
	if err != nil {
		return false, s.wrapConnErr(err)
	}

	result.ResponseStatus = resp.StatusCode
	result.ResponseBody = resp.BodyString()
	return resp.IsSuccess(), nil
}

// deliverDirect builds a plain stream message from the fixture's subject
// and body fields and sends it through the chat API. A fixture missing
// either field is fatal.
func (s *Shooter) deliverDirect(ctx context.Context, i *registry.Integration, f *fixture.Fixture, bot *chatapi.Bot) error {
	subject, ok := f.Field("subject")
	if !ok {
		return fmt.Errorf("%w: fixture %s for %s has no \"subject\" field", ErrBadFixture, f.FileName, i.Name)
	}
	body, ok := f.Field("body")
	if !ok {
		return fmt.Errorf("%w: fixture %s for %s has no \"body\" field", ErrBadFixture, f.FileName, i.Name)
	}

	stream := i.Stream
	if stream == "" {
		stream = request.DefaultStream
	}
	return s.chat.SendMessage(ctx, bot, stream, subject, body)
}

// imagePath resolves the output path, applying config overrides over the
// default <imageDir>/<integration>/001.png.
func (s *Shooter) imagePath(i *registry.Integration, cfg registry.ScreenshotConfig) string {
	dir := cfg.ImageDir
	if dir == "" {
		dir = filepath.Join(s.imageDir, i.Name)
	}
	name := cfg.ImageName
	if name == "" {
		name = "001.png"
	}
	return filepath.Join(dir, name)
}

func (s *Shooter) wrapConnErr(err error) error {
	if httpc.IsConnectionRefused(err) {
		return fmt.Errorf("%w at %s: start the development server and try again (%v)",
			ErrServerUnreachable, s.siteURL, err)
	}
	return err
}

func (s *Shooter) record(result *Result, messageID int64) {
	if s.store == nil {
		return
	}

	status := manifest.StatusCaptured
	switch result.Status {
	case StatusDeliveryFailed:
		status = manifest.StatusFailed
	case StatusCaptureSkipped:
		status = manifest.StatusSkipped
	}

	entry := manifest.Entry{
		RunID:       s.runID,
		Integration: result.Integration,
		Fixture:     result.Fixture,
		MessageID:   messageID,
		ImagePath:   result.ImagePath,
		Status:      status,
	}
	if err := s.store.Record(entry); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record manifest entry: %v\n", err)
	}
}
