package chat

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/greenfield-labs/smartfarm/backend/internal/analysis/intent"
	"github.com/greenfield-labs/smartfarm/backend/internal/metrics"
	"github.com/greenfield-labs/smartfarm/backend/internal/model/chat"
	"github.com/greenfield-labs/smartfarm/backend/internal/model/sensor"
	"github.com/greenfield-labs/smartfarm/backend/internal/service/telemetry"
	"github.com/greenfield-labs/smartfarm/backend/internal/service/vision"
)

var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrMessageNotFound       = errors.New("message not found")
	ErrEmptyInput            = errors.New("empty input")
	ErrClassificationPending = errors.New("an image is already being analyzed")
	ErrClassifierUnavailable = errors.New("image classification is not configured")
)

// Fixed assistant texts around image classification.
const (
	AnalyzingText    = "Analyzing your image..."
	AnalyzeErrorText = "Sorry, I couldn't analyze that image. Please try again."
)

// Classifier is the subset of the vision classifier the conversation needs.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (vision.Result, error)
}

// Service encapsulates conversation state management.
type Service struct {
	selector   *intent.Selector
	feed       telemetry.Feed
	classifier Classifier
	logger     zerolog.Logger
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
}

// Option customises a Service.
type Option func(*Service)

// WithClassifier enables image uploads.
func WithClassifier(c Classifier) Option {
	return func(s *Service) { s.classifier = c }
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService bootstraps the in-memory conversation service.
func NewService(selector *intent.Selector, feed telemetry.Feed, opts ...Option) *Service {
	s := &Service{
		selector: selector,
		feed:     feed,
		logger:   zerolog.Nop(),
		now:      time.Now,
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.feed == nil {
		s.feed = telemetry.NewStaticFeed()
	}
	return s
}

// ClassifierEnabled reports whether image uploads are accepted.
func (s *Service) ClassifierEnabled() bool {
	return s.classifier != nil
}

// CreateSession provisions an anonymous session holding the greeting.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	opening := s.selector.Opening()

	session := chat.Session{
		ID:          uuid.NewString(),
		CreatedAt:   s.now().UTC(),
		Suggestions: opening.Suggestions,
	}
	greeting := s.newMessage(session.ID, chat.SenderAssistant, opening.Reply)

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = append(make([]chat.Message, 0, 16), greeting)
	s.mu.Unlock()

	metrics.MessagesAppended.WithLabelValues(chat.SenderAssistant).Inc()
	s.logger.Debug().Str("session", session.ID).Msg("session created")
	return cloneSession(session), nil
}

// Draft is a resolved reply that has not been stored yet.
type Draft struct {
	Decision intent.Decision
	Readings *sensor.Snapshot
}

// Draft resolves the reply for input, pulling sensor data when the matched
// rule needs it. A failing feed falls back to the default reading.
func (s *Service) Draft(ctx context.Context, input string) Draft {
	var (
		snap     sensor.Snapshot
		readings *sensor.Snapshot
	)
	if s.selector.AttachesSensors(input) {
		current, err := s.feed.Current(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("sensor feed unavailable, using default reading")
			current = telemetry.DefaultReading()
		}
		snap = current
		readings = &current
	}

	decision := s.selector.Select(input, snap)
	metrics.SelectorRuleHits.WithLabelValues(string(decision.Rule)).Inc()
	return Draft{Decision: decision, Readings: readings}
}

// SendText appends the user's text and the selected assistant reply. It
// returns the two new messages.
func (s *Service) SendText(ctx context.Context, sessionID, input string) ([]chat.Message, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	draft := s.Draft(ctx, input)

	user := s.newMessage(sessionID, chat.SenderUser, input)
	answer := s.newMessage(sessionID, chat.SenderAssistant, draft.Decision.Reply)
	answer.AttachedReadings = draft.Readings

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.messages[sessionID] = append(s.messages[sessionID], user, answer)
	if draft.Decision.Suggestions != nil {
		session.Suggestions = draft.Decision.Suggestions
		s.sessions[sessionID] = session
	}

	metrics.MessagesAppended.WithLabelValues(chat.SenderUser).Inc()
	metrics.MessagesAppended.WithLabelValues(chat.SenderAssistant).Inc()
	return []chat.Message{user, answer}, nil
}

// SaveMessage appends a message to the session history and returns it with
// its assigned id and timestamp.
func (s *Service) SaveMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	if message.SessionID == "" {
		return chat.Message{}, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return chat.Message{}, ErrSessionNotFound
	}

	message.ID = uuid.NewString()
	if message.Timestamp.IsZero() {
		message.Timestamp = s.now().UTC()
	}

	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	metrics.MessagesAppended.WithLabelValues(message.Sender).Inc()
	return message, nil
}

// UpdateSuggestions replaces the session's suggestion list. A nil list is a no-op.
func (s *Service) UpdateSuggestions(_ context.Context, sessionID string, suggestions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if suggestions != nil {
		session.Suggestions = append([]string(nil), suggestions...)
		s.sessions[sessionID] = session
	}
	return nil
}

// Upload is a decoded image ready for classification.
type Upload struct {
	Image image.Image
	Ref   chat.ImageRef
}

// Submission tracks one image classification.
type Submission struct {
	User        chat.Message
	Placeholder chat.Message

	done   chan struct{}
	result chat.Message
}

// Wait blocks until the placeholder is replaced or ctx ends. The
// classification itself keeps running when ctx ends first.
func (sub *Submission) Wait(ctx context.Context) (chat.Message, error) {
	select {
	case <-sub.done:
		return sub.result, nil
	case <-ctx.Done():
		return chat.Message{}, ctx.Err()
	}
}

// SubmitImage appends the user's image and a loading placeholder, then
// classifies the image in the background. One classification may be pending
// per session; further uploads get ErrClassificationPending until it settles.
func (s *Service) SubmitImage(ctx context.Context, sessionID string, upload Upload) (*Submission, error) {
	if s.classifier == nil {
		return nil, ErrClassifierUnavailable
	}
	if upload.Image == nil {
		return nil, fmt.Errorf("%w: no pixels", vision.ErrInvalidImage)
	}

	if upload.Ref.ID == "" {
		upload.Ref.ID = uuid.NewString()
	}
	ref := upload.Ref

	user := s.newMessage(sessionID, chat.SenderUser, uploadText(ref))
	user.Image = &ref
	placeholder := s.newMessage(sessionID, chat.SenderAssistant, AnalyzingText)
	placeholder.IsLoading = true

	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if session.Classifying {
		s.mu.Unlock()
		metrics.Classifications.WithLabelValues("rejected").Inc()
		return nil, ErrClassificationPending
	}
	session.Classifying = true
	s.sessions[sessionID] = session
	s.messages[sessionID] = append(s.messages[sessionID], user, placeholder)
	s.mu.Unlock()

	metrics.MessagesAppended.WithLabelValues(chat.SenderUser).Inc()
	metrics.MessagesAppended.WithLabelValues(chat.SenderAssistant).Inc()

	sub := &Submission{User: user, Placeholder: placeholder, done: make(chan struct{})}
	go s.classify(context.WithoutCancel(ctx), sessionID, upload.Image, sub)
	return sub, nil
}

func (s *Service) classify(ctx context.Context, sessionID string, img image.Image, sub *Submission) {
	logger := s.logger.With().Str("session", sessionID).Str("image", sub.User.Image.ID).Logger()

	result := sub.Placeholder
	result.IsLoading = false
	result.Timestamp = s.now().UTC()

	res, err := s.safeClassify(ctx, img)
	if err != nil {
		logger.Error().Err(err).Msg("image classification failed")
		result.Content = AnalyzeErrorText
	} else {
		logger.Info().Str("label", res.Label).Float64("confidence", res.Confidence).Msg("image classified")
		result.Content = resultText(res)
		result.Classification = &chat.Classification{Label: res.Label, Confidence: res.Confidence}
	}

	if err := s.settle(sessionID, result); err != nil {
		logger.Warn().Err(err).Msg("could not replace placeholder")
	}
	sub.result = result
	close(sub.done)
}

// safeClassify turns a panicking model into an ordinary failure so the
// session slot is always released.
func (s *Service) safeClassify(ctx context.Context, img image.Image) (res vision.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", vision.ErrPrediction, r)
		}
	}()
	return s.classifier.Classify(ctx, img)
}

// settle swaps the placeholder for its result and frees the session slot.
func (s *Service) settle(sessionID string, result chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	session.Classifying = false
	s.sessions[sessionID] = session

	return s.replaceLocked(sessionID, result)
}

func (s *Service) replaceLocked(sessionID string, message chat.Message) error {
	messages := s.messages[sessionID]
	for i := range messages {
		if messages[i].ID == message.ID {
			messages[i] = message
			return nil
		}
	}
	return ErrMessageNotFound
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return cloneSession(session), nil
}

// Suggestions returns the prompts currently offered for the session.
func (s *Service) Suggestions(ctx context.Context, sessionID string) ([]string, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Suggestions, nil
}

// LoadTranscript returns stored messages for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *Service) newMessage(sessionID, sender, content string) chat.Message {
	return chat.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Sender:    sender,
		Content:   content,
		Timestamp: s.now().UTC(),
	}
}

func cloneSession(session chat.Session) chat.Session {
	session.Suggestions = append([]string(nil), session.Suggestions...)
	return session
}

func uploadText(ref chat.ImageRef) string {
	if ref.Filename == "" {
		return "Uploaded an image"
	}
	return "Uploaded an image: " + ref.Filename
}

func resultText(res vision.Result) string {
	return fmt.Sprintf("I analyzed your image and detected: %s (%.1f%% confidence).",
		displayLabel(res.Label), res.Confidence*100)
}

// displayLabel turns "Corn_(maize)___Common_rust_" into "Corn (maize) - Common rust".
func displayLabel(label string) string {
	parts := strings.SplitN(label, "___", 2)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(strings.ReplaceAll(p, "_", " "))
	}
	return strings.Join(parts, " - ")
}
