package delivery

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/formeye/internal/fieldmap"
	"github.com/formeye/internal/history"
	"github.com/formeye/internal/messenger"
	"github.com/formeye/internal/models"
	"github.com/formeye/internal/rule"
	"github.com/formeye/internal/template"
)

// Candidate is one (rule, record) pair the trigger paths decided should
// fire. EvalErr carries a formula error that must reach the audit trail
// without firing.
type Candidate struct {
	Rule       models.Rule
	Submission *models.Submission
	Fields     *fieldmap.Map
	EvalErr    error
}

type Config struct {
	DefaultBotToken string
	DefaultChatID   string
	SendTimeout     time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
}

// Coordinator applies enablement, send-once and priority policy, calls
// the Messenger and appends every finalized outcome to the ledger.
type Coordinator struct {
	cfg    Config
	rules  *rule.Store
	ledger *history.Ledger
	sender messenger.Messenger

	mu       sync.Mutex
	channels map[string]*sync.Mutex // serializes sends per (botToken, chatID)
}

func NewCoordinator(cfg Config, rules *rule.Store, ledger *history.Ledger, sender messenger.Messenger) *Coordinator {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Coordinator{
		cfg:      cfg,
		rules:    rules,
		ledger:   ledger,
		sender:   sender,
		channels: make(map[string]*sync.Mutex),
	}
}

// Dispatch processes one batch of firing candidates in priority order
// (high, medium, low; ties keep selection order). Each candidate is its
// own fault boundary: a failing rule never aborts its siblings.
func (c *Coordinator) Dispatch(ctx context.Context, batch []Candidate) {
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Rule.Priority.Rank() < batch[j].Rule.Priority.Rank()
	})
	for i := range batch {
		c.dispatchOne(ctx, &batch[i])
	}
}

func (c *Coordinator) dispatchOne(ctx context.Context, cand *Candidate) {
	r := cand.Rule
	var submissionID uint
	if cand.Submission != nil {
		submissionID = cand.Submission.ID
	}

	if cand.EvalErr != nil {
		// Formula errors are rule-local: audit and move on.
		log.Printf("rule %d (%s): condition error: %v", r.ID, r.Name, cand.EvalErr)
		c.record(&models.DeliveryRecord{
			RuleID:       r.ID,
			RuleName:     r.Name,
			SubmissionID: submissionID,
			Status:       models.DeliveryStatusSkipped,
			ErrorMessage: cand.EvalErr.Error(),
		})
		return
	}

	// Rules can be toggled between selection and dispatch.
	fresh, err := c.rules.Get(r.ID)
	if err != nil || !fresh.IsEnabled {
		c.record(&models.DeliveryRecord{
			RuleID:       r.ID,
			RuleName:     r.Name,
			SubmissionID: submissionID,
			Status:       models.DeliveryStatusSkipped,
			ErrorMessage: "rule disabled or deleted before dispatch",
		})
		return
	}
	r = *fresh

	if r.SendOnce {
		sent, err := c.ledger.HasSent(r.ID, submissionID)
		if err != nil {
			log.Printf("rule %d: send-once lookup failed: %v", r.ID, err)
			return
		}
		if sent {
			c.record(&models.DeliveryRecord{
				RuleID:       r.ID,
				RuleName:     r.Name,
				SubmissionID: submissionID,
				Status:       models.DeliveryStatusSkipped,
				ErrorMessage: "send-once already satisfied",
			})
			return
		}
	}

	text := template.Render(r.MessageTemplate, cand.Fields)
	botToken, chatID := c.channel(&r)

	unlock := c.lockChannel(botToken, chatID)
	msgID, sendErr := c.sendWithRetry(ctx, botToken, chatID, text)
	unlock()

	if sendErr != nil {
		c.record(&models.DeliveryRecord{
			RuleID:          r.ID,
			RuleName:        r.Name,
			SubmissionID:    submissionID,
			Status:          models.DeliveryStatusFailed,
			RenderedMessage: text,
			ErrorMessage:    sendErr.Error(),
		})
		return
	}

	now := time.Now()
	c.record(&models.DeliveryRecord{
		RuleID:            r.ID,
		RuleName:          r.Name,
		SubmissionID:      submissionID,
		Status:            models.DeliveryStatusSent,
		RenderedMessage:   text,
		ProviderMessageID: msgID,
		SentAt:            &now,
	})
}

func (c *Coordinator) channel(r *models.Rule) (string, string) {
	botToken := r.BotToken
	if botToken == "" {
		botToken = c.cfg.DefaultBotToken
	}
	chatID := r.GroupID
	if chatID == "" {
		chatID = c.cfg.DefaultChatID
	}
	return botToken, chatID
}

func (c *Coordinator) lockChannel(botToken, chatID string) func() {
	key := botToken + "\x00" + chatID
	c.mu.Lock()
	m, ok := c.channels[key]
	if !ok {
		m = &sync.Mutex{}
		c.channels[key] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// sendWithRetry attempts delivery with exponential backoff. Every
// attempt is bounded; a timed-out attempt counts as failed but the
// in-flight provider call is left to finish on its own.
func (c *Coordinator) sendWithRetry(ctx context.Context, botToken, chatID, text string) (string, error) {
	delay := c.cfg.RetryDelay
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		msgID, err := c.sendOnce(ctx, botToken, chatID, text)
		if err == nil {
			return msgID, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < c.cfg.MaxRetries {
			log.Printf("send attempt %d/%d failed: %v", attempt, c.cfg.MaxRetries, err)
			time.Sleep(delay)
			delay *= 2
		}
	}
	return "", lastErr
}

type sendResult struct {
	msgID string
	err   error
}

func (c *Coordinator) sendOnce(ctx context.Context, botToken, chatID, text string) (string, error) {
	sendCtx, cancel := context.WithTimeout(ctx, c.cfg.SendTimeout)
	defer cancel()

	done := make(chan sendResult, 1)
	go func() {
		msgID, err := c.sender.Send(sendCtx, botToken, chatID, text)
		done <- sendResult{msgID, err}
	}()

	select {
	case res := <-done:
		return res.msgID, res.err
	case <-sendCtx.Done():
		// The dispatched call keeps running; the outcome here is final.
		return "", fmt.Errorf("send timed out after %s", c.cfg.SendTimeout)
	}
}

func (c *Coordinator) record(rec *models.DeliveryRecord) {
	if err := c.ledger.Append(rec); err != nil {
		log.Printf("failed to append delivery record for rule %d: %v", rec.RuleID, err)
	}
}
