package checkin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"echomind/internal/patient"
)

// questionBank is the fixed opening sequence for every daily session. Once a
// patient has answered all of them the follow-ups come from the AI generator.
var questionBank = []string{
	"How are you feeling today?",
	"How would you rate your overall mood today on a scale of 1-10?",
	"Have you had any thoughts of self-harm or suicide?",
	"Have you been taking your medicine on time?",
}

const fallbackQuestion = "How are you feeling today? Is there anything specific you'd like to talk about?"

// Channel delivers outbound text to a patient's chat. Implemented by the
// Telegram client; delivery failures are logged by the engine but never undo
// the recorded question.
type Channel interface {
	SendPrompt(ctx context.Context, chatID int64, text string) error
}

// Exchange is one answered (question, response) pair with its score, used as
// conversational context for the follow-up generator.
type Exchange struct {
	Question string
	Response string
	Score    float64
}

// Generator produces the next follow-up question once the fixed bank is
// exhausted.
type Generator interface {
	NextQuestion(ctx context.Context, p *patient.Patient, history []Exchange) (string, error)
}

// Classifier scores a single exchange's sentiment in [0, 1].
type Classifier interface {
	Classify(ctx context.Context, text string) (float64, error)
}

// Service drives the per-patient check-in conversation: which question to ask
// next, and how an inbound reply is scored, recorded and followed up.
type Service interface {
	// Checkin sends the patient their next question, recording it as
	// pending before delivery.
	Checkin(ctx context.Context, p *patient.Patient) error
	// HandleReply scores the reply against the outstanding question,
	// records it, and immediately asks the next question. Returns
	// ErrNoPendingMessage when nothing is outstanding.
	HandleReply(ctx context.Context, p *patient.Patient, reply string) error
}

type service struct {
	repo       Repository
	generator  Generator
	classifier Classifier
	channel    Channel
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo Repository, generator Generator, classifier Classifier, channel Channel, logger *slog.Logger) Service {
	return &service{
		repo:       repo,
		generator:  generator,
		classifier: classifier,
		channel:    channel,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *service) Checkin(ctx context.Context, p *patient.Patient) error {
	date, err := s.sessionDate(p)
	if err != nil {
		return err
	}
	sess, err := s.repo.GetOrCreateSession(ctx, p.ID, date)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	question := s.nextQuestion(ctx, p, sess)
	if _, err := s.repo.RecordQuestion(ctx, p.ID, date, question); err != nil {
		return fmt.Errorf("failed to record question: %w", err)
	}

	if !p.HasChannel() {
		s.logger.Warn("patient has no channel binding, question recorded but not delivered",
			"patient_id", p.ID)
		return nil
	}
	if err := s.channel.SendPrompt(ctx, *p.ChatID, question); err != nil {
		// The question stays recorded; the reply protocol tolerates a
		// prompt the patient never saw.
		s.logger.Error("failed to deliver check-in question",
			"patient_id", p.ID, "error", err)
	}
	return nil
}

func (s *service) HandleReply(ctx context.Context, p *patient.Patient, reply string) error {
	pending, err := s.repo.PendingQuestion(ctx, p.ID)
	if err != nil {
		return err
	}

	score := s.classify(ctx, pending.Question, reply)
	if _, err := s.repo.RecordReply(ctx, p.ID, reply, score); err != nil {
		return fmt.Errorf("failed to record reply: %w", err)
	}

	// Each answer immediately earns the next question.
	return s.Checkin(ctx, p)
}

// nextQuestion walks the fixed bank by answered-message count, then hands
// over to the generator. Generator failures degrade to a canned question so
// the conversation never stalls.
func (s *service) nextQuestion(ctx context.Context, p *patient.Patient, sess *Session) string {
	if sess.MessageCount < len(questionBank) {
		q := questionBank[sess.MessageCount]
		if sess.MessageCount == 0 {
			return fmt.Sprintf("\U0001F44B Hey, %s! It's time for your daily check-in. %s", p.FirstName(), q)
		}
		return q
	}

	history, err := s.repo.RecentScored(ctx, p.ID, 5)
	if err != nil {
		s.logger.Error("failed to load conversation history", "patient_id", p.ID, "error", err)
		return fallbackQuestion
	}
	exchanges := make([]Exchange, 0, len(history))
	// RecentScored is newest first; the generator wants chronological order.
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		exchanges = append(exchanges, Exchange{Question: m.Question, Response: m.Response, Score: *m.Score})
	}

	q, err := s.generator.NextQuestion(ctx, p, exchanges)
	if err != nil {
		s.logger.Error("failed to generate follow-up question", "patient_id", p.ID, "error", err)
		return fallbackQuestion
	}
	return q
}

// classify scores the exchange, falling back to a neutral score when the
// classifier is unavailable so a recorded reply is never blocked on it.
func (s *service) classify(ctx context.Context, question, reply string) float64 {
	score, err := s.classifier.Classify(ctx, fmt.Sprintf("Question: %s Response: %s", question, reply))
	if err != nil {
		s.logger.Error("sentiment classification failed, using neutral score", "error", err)
		return 0.5
	}
	return RoundScore(ClampScore(score))
}

func (s *service) sessionDate(p *patient.Patient) (time.Time, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid patient timezone %q: %w", p.Timezone, err)
	}
	return DateOf(s.now(), loc), nil
}
