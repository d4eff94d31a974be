package action

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Asygurare/salespilot/agent/contract"
	"github.com/Asygurare/salespilot/agent/identity"
	"github.com/Asygurare/salespilot/agent/schedule"
)

const mailProvider = "google"

func (d *Dispatcher) mailDefinitions() []Definition {
	return []Definition{
		{
			Name:                 "mail.send",
			Description:          "Send an email immediately from the connected mailbox.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"to":      {Type: "array", Items: "string", Description: "Recipient email addresses", Required: true},
				"subject": {Type: "string", Description: "Subject line", Required: true},
				"html":    {Type: "string", Description: "HTML body"},
				"text":    {Type: "string", Description: "Plain-text body"},
			},
			parse: parseArgs((*mailBodyArgs).validate),
			run:   d.runMailSend,
		},
		{
			Name:                 "mail.schedule",
			Description:          "Schedule an email for deferred delivery, at least 30 seconds out.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"to":              {Type: "array", Items: "string", Description: "Recipient email addresses", Required: true},
				"subject":         {Type: "string", Description: "Subject line", Required: true},
				"html":            {Type: "string", Description: "HTML body"},
				"text":            {Type: "string", Description: "Plain-text body"},
				"send_at_iso":     {Type: "string", Description: "Absolute send time, ISO-8601"},
				"send_in_minutes": {Type: "integer", Description: "Minutes from now; alternative to send_at_iso"},
			},
			parse: parseArgs((*mailScheduleArgs).validate),
			run:   d.runMailSchedule,
		},
		{
			Name:                 "mail.cancel_scheduled",
			Description:          "Cancel a scheduled email that has not finished sending.",
			RequiresConfirmation: true,
			Params: map[string]Param{
				"id": {Type: "string", Description: "Scheduled email id", Required: true},
			},
			parse: parseArgs((*mailCancelArgs).validate),
			run:   d.runMailCancelScheduled,
		},
	}
}

type mailBodyArgs struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

// validate canonicalizes recipients and checks the message shape. It stays
// free of store and provider calls so it can run ahead of the confirmation
// gate.
func (a *mailBodyArgs) validate(contract.CallerContext) error {
	valid, invalid := identity.NormalizeRecipients(a.To)
	if len(invalid) > 0 {
		return fmt.Errorf("%w: invalid recipient address(es): %s", contract.ErrInvalidInput, strings.Join(invalid, ", "))
	}
	if len(valid) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", contract.ErrInvalidInput)
	}
	if strings.TrimSpace(a.Subject) == "" {
		return fmt.Errorf("%w: subject is required", contract.ErrInvalidInput)
	}
	if a.HTML == "" && a.Text == "" {
		return fmt.Errorf("%w: html or text body is required", contract.ErrInvalidInput)
	}
	a.To = valid
	a.Subject = strings.TrimSpace(a.Subject)
	return nil
}

// render substitutes the resolved sender name into subject and bodies.
// Substitution is idempotent, so text already run through a drafting pass is
// safe.
func (a *mailBodyArgs) render(ctx context.Context, profiles identity.ProfileReader, userID string) {
	sender := identity.ResolveSenderName(ctx, profiles, userID)
	a.Subject = identity.ApplySenderPlaceholder(a.Subject, sender)
	a.HTML = identity.ApplySenderPlaceholder(a.HTML, sender)
	a.Text = identity.ApplySenderPlaceholder(a.Text, sender)
}

func (d *Dispatcher) runMailSend(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(mailBodyArgs)
	args.render(ctx, d.profiles, caller.UserID)

	cred, err := d.creds.Resolve(ctx, caller.UserID, mailProvider)
	if err != nil {
		return nil, err
	}

	receipt, err := d.mail.Send(ctx, cred, contract.MailMessage{
		To:      args.To,
		Subject: args.Subject,
		HTML:    args.HTML,
		Text:    args.Text,
	})
	if err != nil {
		return nil, err
	}

	// The mail is already delivered; a failed audit write must not undo or
	// fail the action.
	_, auditErr := d.store.Insert(ctx, caller.UserID, "sent_emails", map[string]any{
		"recipients":          args.To,
		"subject":             args.Subject,
		"provider_message_id": receipt.MessageID,
		"sent_at":             caller.Now,
	})
	if auditErr != nil {
		log.Warn().Err(auditErr).Str("user_id", caller.UserID).Msg("sent-log audit write failed after successful send")
	}

	return map[string]any{"message_id": receipt.MessageID, "to": args.To, "subject": args.Subject}, nil
}

type mailScheduleArgs struct {
	mailBodyArgs `json:",squash"`

	SendAtISO     string `json:"send_at_iso"`
	SendInMinutes int    `json:"send_in_minutes"`

	sendAt time.Time
}

func (a *mailScheduleArgs) validate(caller contract.CallerContext) error {
	if err := a.mailBodyArgs.validate(caller); err != nil {
		return err
	}

	// Exactly one resolution path; the resulting absolute instant is what
	// gets persisted, never re-derived later.
	switch {
	case a.SendAtISO != "" && a.SendInMinutes > 0:
		return fmt.Errorf("%w: provide send_at_iso or send_in_minutes, not both", contract.ErrInvalidInput)
	case a.SendAtISO != "":
		sendAt, err := parseInstant("send_at_iso", a.SendAtISO, caller.Location())
		if err != nil {
			return err
		}
		a.sendAt = sendAt
	case a.SendInMinutes > 0:
		a.sendAt = caller.Now.Add(time.Duration(a.SendInMinutes) * time.Minute)
	default:
		return fmt.Errorf("%w: send_at_iso or a positive send_in_minutes is required", contract.ErrInvalidInput)
	}
	return nil
}

func (d *Dispatcher) runMailSchedule(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(mailScheduleArgs)
	args.render(ctx, d.profiles, caller.UserID)

	send := &schedule.ScheduledSend{
		UserID:       caller.UserID,
		Recipients:   args.To,
		Subject:      args.Subject,
		HTML:         args.HTML,
		Text:         args.Text,
		ScheduledFor: args.sendAt.UTC(),
		Timezone:     caller.Location().String(),
		CreatedAt:    caller.Now,
	}
	if err := d.sends.Create(ctx, send); err != nil {
		return nil, err
	}

	return map[string]any{
		"scheduled_send_id": send.ID,
		"status":            send.Status,
		"scheduled_for":     send.ScheduledFor,
		"recipients":        send.Recipients,
	}, nil
}

type mailCancelArgs struct {
	ID string `json:"id"`
}

func (a *mailCancelArgs) validate(contract.CallerContext) error {
	if a.ID == "" {
		return fmt.Errorf("%w: id is required", contract.ErrInvalidInput)
	}
	return nil
}

func (d *Dispatcher) runMailCancelScheduled(ctx context.Context, in any, caller contract.CallerContext) (any, error) {
	args := in.(mailCancelArgs)
	send, err := d.sends.Cancel(ctx, caller.UserID, args.ID, caller.Now)
	if err != nil {
		return nil, err
	}
	return map[string]any{"scheduled_send_id": send.ID, "status": send.Status}, nil
}
