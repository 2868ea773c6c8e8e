package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"glass-voice/internal/action"
	"glass-voice/internal/builder"
	"glass-voice/internal/domain"
	"glass-voice/internal/intent"
	"glass-voice/internal/metrics"
	"glass-voice/internal/provider"
	"glass-voice/internal/session"
)

const (
	defaultMaxLength    = 60
	defaultMaxUtterance = 500
	// summaryKeep is how many turns survive a length-ceiling truncation.
	summaryKeep = 4
)

type IntentClassifier interface {
	Classify(ctx context.Context, text string, turns []domain.Turn) intent.Intent
}

type ActionExecutor interface {
	Execute(ctx context.Context, req action.Request) action.Result
	CreateFromBuilder(ctx context.Context, b *builder.Builder) action.Result
}

type Journal interface {
	Record(ctx context.Context, entry domain.JournalEntry) error
}

var fillers = []string{"Mm-hmm.", "I'm listening.", "Go on.", "Okay.", "Right."}

// ConversationService is the single entry point for utterances. Each call
// holds the session lock for its whole turn, so turns on one session key
// are serialized while different keys run in parallel.
type ConversationService struct {
	sessions     *session.Store
	classifier   IntentClassifier
	actions      ActionExecutor
	transcribers []provider.Transcriber
	responders   []provider.Responder
	journal      Journal
	logger       *slog.Logger
	maxLength    int
	maxUtterance int

	fillerSeq atomic.Uint64
}

type Option func(*ConversationService)

func WithTranscribers(ts ...provider.Transcriber) Option {
	return func(s *ConversationService) { s.transcribers = append(s.transcribers, ts...) }
}

func WithResponders(rs ...provider.Responder) Option {
	return func(s *ConversationService) { s.responders = append(s.responders, rs...) }
}

func WithJournal(j Journal) Option {
	return func(s *ConversationService) { s.journal = j }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *ConversationService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLimits sets the conversation length ceiling (recorded turns before a
// summary notice) and the longest accepted utterance in bytes.
func WithLimits(maxLength, maxUtterance int) Option {
	return func(s *ConversationService) {
		if maxLength > 0 {
			s.maxLength = maxLength
		}
		if maxUtterance > 0 {
			s.maxUtterance = maxUtterance
		}
	}
}

func NewConversationService(sessions *session.Store, classifier IntentClassifier, actions ActionExecutor, opts ...Option) (*ConversationService, error) {
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if classifier == nil {
		return nil, errors.New("usecase: intent classifier must not be nil")
	}
	if actions == nil {
		return nil, errors.New("usecase: action executor must not be nil")
	}
	s := &ConversationService{
		sessions:     sessions,
		classifier:   classifier,
		actions:      actions,
		logger:       slog.Default(),
		maxLength:    defaultMaxLength,
		maxUtterance: defaultMaxUtterance,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type ProcessInput struct {
	SessionKey string
	Text       string
	Final      bool
	Interim    bool
}

type Response struct {
	SessionKey   string  `json:"sessionKey"`
	Reply        string  `json:"reply"`
	Action       string  `json:"action,omitempty"`
	ActionResult any     `json:"actionResult,omitempty"`
	ShouldSpeak  bool    `json:"shouldSpeak"`
	Filler       string  `json:"filler,omitempty"`
	Confidence   float64 `json:"confidence"`
	Intent       string  `json:"intent,omitempty"`
	Transcript   string  `json:"transcript,omitempty"`
	Degraded     bool    `json:"degraded,omitempty"`
}

// Process handles one utterance. Only invalid input is reported as an
// error; every other failure still produces a Response.
func (s *ConversationService) Process(ctx context.Context, in ProcessInput) (Response, error) {
	key := strings.TrimSpace(in.SessionKey)
	if key == "" {
		key = newUUID()
	}
	text := strings.TrimSpace(in.Text)

	if in.Interim && !in.Final {
		return s.listening(key), nil
	}
	if text == "" {
		return Response{}, newError(ErrorInvalidInput, "empty_utterance", nil)
	}
	if len(text) > s.maxUtterance {
		return Response{}, newError(ErrorInvalidInput, "utterance_too_long", nil)
	}

	sess := s.lockSession(ctx, key)
	defer sess.Unlock()

	now := s.sessions.Now()
	sess.UserSpeaking = false
	sess.AwaitingInput = false
	sess.AppendTurn(domain.SpeakerUser, text, now)
	notice := s.checkLength(sess)

	var resp Response
	if sess.Builder != nil {
		resp = s.continueOrder(ctx, sess, text)
	} else {
		resp = s.respond(ctx, sess, text)
	}
	resp.SessionKey = key
	if notice != "" {
		resp.Reply = notice + " " + resp.Reply
	}

	if resp.Action != action.EndConversation {
		sess.AppendTurn(domain.SpeakerAssistant, resp.Reply, s.sessions.Now())
	}
	sess.AssistantSpeaking = resp.ShouldSpeak
	sess.PendingOutput = resp.Reply

	s.sessions.Save(ctx, sess)
	s.record(ctx, sess, text, resp)
	return resp, nil
}

// lockSession returns the locked live session for key. A session ended while
// this turn waited for the lock is replaced by a fresh one.
func (s *ConversationService) lockSession(ctx context.Context, key string) *session.Session {
	for {
		sess := s.sessions.GetOrCreate(ctx, key)
		sess.Lock()
		if !sess.Closed() {
			return sess
		}
		sess.Unlock()
	}
}

func (s *ConversationService) listening(key string) Response {
	if sess, ok := s.sessions.Get(key); ok {
		sess.Lock()
		sess.UserSpeaking = true
		sess.Touch(s.sessions.Now())
		sess.Unlock()
	}
	return Response{SessionKey: key, Filler: s.filler()}
}

func (s *ConversationService) filler() string {
	n := s.fillerSeq.Add(1) - 1
	return fillers[n%uint64(len(fillers))]
}

// checkLength truncates a conversation that ran past the ceiling and
// returns the notice to prepend to the reply.
func (s *ConversationService) checkLength(sess *session.Session) string {
	if sess.TotalTurns-sess.SummarizedAt < s.maxLength {
		return ""
	}
	sess.Truncate(summaryKeep)

	var sb strings.Builder
	sb.WriteString("We've covered a lot, so let me summarize.")
	switch {
	case sess.Builder != nil && len(sess.Builder.Missing()) > 0:
		fmt.Fprintf(&sb, " We're setting up a %s order and still need the %s.",
			orDefault(sess.Builder.GlassType, "new"), strings.Join(sess.Builder.Missing(), ", "))
	case sess.Builder != nil:
		sb.WriteString(" " + sess.Builder.Summary())
	case sess.Topic != "":
		fmt.Fprintf(&sb, " We were talking about %s.", strings.ReplaceAll(sess.Topic, "_", " "))
	}
	return sb.String()
}

// continueOrder feeds the utterance into the active order builder without
// classifying it. Cancellation words are honoured before anything else.
func (s *ConversationService) continueOrder(ctx context.Context, sess *session.Session, text string) Response {
	b := sess.Builder
	resp := Response{
		Intent:      string(intent.PlaceOrder),
		Action:      action.CreateOrder,
		Confidence:  1,
		ShouldSpeak: true,
	}

	var out builder.Outcome
	if builder.IsCancellation(text) {
		out = b.Cancel()
	} else {
		out = b.Apply(text)
	}

	switch {
	case out.Confirmed:
		sess.Builder = nil
		res := s.actions.CreateFromBuilder(ctx, b)
		resp.Reply = res.Reply
		resp.ActionResult = res.Data
		resp.Degraded = res.Degraded
		sess.Topic = intent.Lookup(intent.PlaceOrder).Topic
	case out.Cancelled:
		sess.Builder = nil
		metrics.BuilderOutcomes.WithLabelValues("cancelled").Inc()
		resp.Intent = string(intent.CancelOrder)
		resp.Action = action.CancelOrder
		resp.Reply = out.Prompt
		resp.ActionResult = map[string]any{"step": out.Step}
	default:
		resp.Reply = out.Prompt
		resp.ActionResult = map[string]any{"step": out.Step, "missing": b.Missing()}
		sess.AwaitingInput = true
	}
	return resp
}

func (s *ConversationService) respond(ctx context.Context, sess *session.Session, text string) Response {
	turns := sess.History()
	in := s.classifier.Classify(ctx, text, turns)

	res := s.actions.Execute(ctx, action.Request{Intent: in, Utterance: text, Session: sess})
	reply := in.Reply
	if res.Handled {
		reply = res.Reply
	} else if in.ShouldRespond {
		if refined, ok := s.refine(ctx, text, in, turns); ok {
			reply = refined
		}
	}

	if res.Action != action.EndConversation {
		sess.Topic = in.Topic
	}
	sess.AwaitingInput = sess.AwaitingInput || in.RequiresInput || sess.Builder != nil

	return Response{
		Reply:        reply,
		Action:       res.Action,
		ActionResult: res.Data,
		ShouldSpeak:  in.ShouldRespond || res.Handled,
		Confidence:   in.Confidence,
		Intent:       string(in.Name),
		Degraded:     res.Degraded,
	}
}

// refine asks the responders, in order, to phrase a conversational reply.
// The first usable answer wins.
func (s *ConversationService) refine(ctx context.Context, text string, in intent.Intent, turns []domain.Turn) (string, bool) {
	for _, r := range s.responders {
		rep, err := r.GenerateReply(ctx, provider.ReplyRequest{
			Text:   text,
			Intent: string(in.Name),
			Turns:  turns,
			Data:   map[string]any{"topic": in.Topic, "phase": in.Phase, "template": in.Reply},
		})
		if err != nil {
			s.logger.Warn("reply generation failed", "provider", r.Name(), "err", err)
			continue
		}
		if reply := strings.TrimSpace(rep.Text); reply != "" {
			return reply, true
		}
	}
	return "", false
}

func (s *ConversationService) record(ctx context.Context, sess *session.Session, text string, resp Response) {
	if s.journal == nil {
		return
	}
	err := s.journal.Record(ctx, domain.JournalEntry{
		ConversationID: sess.Key,
		Utterance:      text,
		Reply:          resp.Reply,
		Intent:         resp.Intent,
		Action:         resp.Action,
		Turns:          sess.TotalTurns,
	})
	if err != nil {
		s.logger.Warn("journal write failed", "session", sess.Key, "err", err)
	}
}

// ProcessAudio transcribes audio with the first transcriber that succeeds
// and processes the transcript as a final utterance.
func (s *ConversationService) ProcessAudio(ctx context.Context, audio []byte, in ProcessInput) (Response, error) {
	if len(audio) == 0 {
		return Response{}, newError(ErrorInvalidInput, "empty_audio", nil)
	}
	if len(s.transcribers) == 0 {
		return Response{}, newError(ErrorInternal, "no_transcriber", nil)
	}
	key := strings.TrimSpace(in.SessionKey)
	if key == "" {
		key = newUUID()
	}

	var (
		transcript string
		failures   []error
	)
	for _, t := range s.transcribers {
		res, err := t.Transcribe(ctx, audio)
		if err != nil {
			s.logger.Warn("transcription failed", "provider", t.Name(), "err", err)
			failures = append(failures, err)
			continue
		}
		if transcript = strings.TrimSpace(res.Text); transcript != "" {
			break
		}
	}
	if len(failures) == len(s.transcribers) {
		return Response{}, newError(ErrorUpstream, "transcription_unavailable", errors.Join(failures...))
	}
	if transcript == "" {
		return Response{
			SessionKey:  key,
			Reply:       "Sorry, I didn't catch that. Could you say it again?",
			ShouldSpeak: true,
		}, nil
	}

	resp, err := s.Process(ctx, ProcessInput{SessionKey: key, Text: transcript, Final: true})
	if err != nil {
		return Response{}, err
	}
	resp.Transcript = transcript
	return resp, nil
}

type InterruptResult struct {
	SessionKey    string `json:"sessionKey"`
	Found         bool   `json:"found"`
	Interruptions int    `json:"interruptions"`
}

// Interrupt stops the assistant's current reply. An unknown key is a no-op.
func (s *ConversationService) Interrupt(ctx context.Context, key string) InterruptResult {
	sess, ok := s.sessions.Get(key)
	if !ok {
		return InterruptResult{SessionKey: key}
	}
	sess.Lock()
	defer sess.Unlock()
	if sess.Closed() {
		return InterruptResult{SessionKey: key}
	}
	sess.Interrupt(s.sessions.Now())
	s.sessions.Save(ctx, sess)
	return InterruptResult{SessionKey: key, Found: true, Interruptions: sess.Interruptions}
}

type EndResult struct {
	SessionKey string `json:"sessionKey"`
	Found      bool   `json:"found"`
	Reply      string `json:"reply,omitempty"`
}

// End destroys the session. It waits for an in-flight turn on the same key
// to finish first. An unknown key is a no-op.
func (s *ConversationService) End(ctx context.Context, key string) EndResult {
	sess, ok := s.sessions.Get(key)
	if !ok {
		s.sessions.Delete(ctx, key)
		return EndResult{SessionKey: key}
	}
	sess.Lock()
	defer sess.Unlock()
	if !s.sessions.Delete(ctx, key) {
		return EndResult{SessionKey: key}
	}
	return EndResult{SessionKey: key, Found: true, Reply: intent.Lookup(intent.EndConversation).Reply}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

var newUUID = func() string {
	return uuid.NewString()
}
