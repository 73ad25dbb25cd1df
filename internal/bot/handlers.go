package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"fresherjobs/internal/importer"
	"fresherjobs/internal/model"
	"fresherjobs/internal/storage"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to the FresherJobs admin panel!

Review imported drafts, publish listings and broadcast them to the channel.

Quick start:
1. /drafts — listings waiting for review
2. /publish <id> — make a listing visible
3. /broadcast <id> — post a listing to the channel

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Listings:
/stats — growth funnel per source
/recent [n] — newest visible listings
/drafts — imported listings waiting for review
/publish <id> — publish a listing
/archive <id> — archive a listing
/broadcast <id> — post a listing to the channel

Import sources:
/sources — show all sources
/addsource <url> [JOB|INTERNSHIP|WALKIN] — add a partner feed
/rmsource <id> — delete a source
/pause <id> — pause importing
/resume <id> — resume importing
/interval <id> <min> — set check interval (1-1440)
/check <id> — import now

Import rules:
/rules <id> — show rules for a source
/include <id> [-s scope] <word> — import only matching items
/exclude <id> [-s scope] <word> — skip matching items
/include_re <id> [-s scope] <regex>
/exclude_re <id> [-s scope] <regex>
/rmrule <rule_id> — remove a rule

Scope flag: -s title | company | content | all (default: all)`)
}

func (b *Bot) audit(ctx context.Context, actor, action, entityID, detail string) {
	e := &model.AuditEntry{Actor: actor, Action: action, EntityID: entityID, Detail: detail}
	if err := b.store.AppendAudit(ctx, e); err != nil {
		b.log.Error("append audit entry", "action", action, "entity_id", entityID, "error", err)
	}
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	if b.funnel == nil {
		b.reply(chatID, "Funnel tracking is not configured.")
		return
	}
	m, err := b.funnel.Metrics(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatFunnel(m))
}

func (b *Bot) handleRecent(ctx context.Context, chatID int64, args string) {
	limit, err := ParseLimitArg(args, 10, 50)
	if err != nil {
		b.reply(chatID, "Usage: /recent [n]")
		return
	}
	opps, _, err := b.store.ListOpportunities(ctx, storage.ListQuery{Now: time.Now(), Limit: limit})
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatOpportunityList("Recent listings", opps))
}

func (b *Bot) handleDrafts(ctx context.Context, chatID int64) {
	opps, err := b.store.ListRecent(ctx, model.StatusDraft, 20)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	text := FormatOpportunityList("Drafts", opps)
	if len(opps) == 0 {
		b.reply(chatID, text)
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, o := range opps {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Publish: "+shorten(o.Title, 40), cmdPublish+":"+o.ID),
		))
	}
	b.sendWithKeyboard(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = markup
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) loadListing(ctx context.Context, chatID int64, id string) (*model.Opportunity, bool) {
	o, err := b.store.GetOpportunity(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && o.DeletedAt != nil) {
		b.reply(chatID, fmt.Sprintf("Listing %s not found.", id))
		return nil, false
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return nil, false
	}
	return o, true
}

func (b *Bot) setStatus(ctx context.Context, chatID int64, actor, args string, status model.Status, action string) {
	id, err := ParseListingArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /%s <id>", action))
		return
	}
	o, ok := b.loadListing(ctx, chatID, id)
	if !ok {
		return
	}

	prev := o.Status
	o.Status = status
	if err := b.store.UpdateOpportunity(ctx, o); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.audit(ctx, actor, "opportunity."+action, o.ID, fmt.Sprintf("%s -> %s", prev, status))
	b.reply(chatID, fmt.Sprintf("%s \"%s\" is now %s.", o.ID, o.Title, status))
}

func (b *Bot) handlePublish(ctx context.Context, chatID int64, actor, args string) {
	b.setStatus(ctx, chatID, actor, args, model.StatusPublished, cmdPublish)
}

func (b *Bot) handleArchive(ctx context.Context, chatID int64, actor, args string) {
	b.setStatus(ctx, chatID, actor, args, model.StatusArchived, "archive")
}

func (b *Bot) handleBroadcastConfirm(ctx context.Context, chatID int64, args string) {
	id, err := ParseListingArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /broadcast <id>")
		return
	}
	if b.cfg.BroadcastChatID == 0 {
		b.reply(chatID, "BROADCAST_CHAT_ID is not configured.")
		return
	}
	o, ok := b.loadListing(ctx, chatID, id)
	if !ok {
		return
	}
	if !o.Visible() {
		b.reply(chatID, fmt.Sprintf("Listing %s is %s, publish it first.", o.ID, o.Status))
		return
	}

	msg := tgbotapi.NewMessage(chatID, "Broadcast this listing?\n\n"+FormatOpportunity(*o))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, broadcast", cbBroadcast+":"+o.ID),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:0"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send broadcast confirmation", "error", err)
	}
}

func (b *Bot) handleBroadcast(ctx context.Context, chatID int64, actor, id string) {
	if b.cfg.BroadcastChatID == 0 {
		b.reply(chatID, "BROADCAST_CHAT_ID is not configured.")
		return
	}
	o, ok := b.loadListing(ctx, chatID, id)
	if !ok {
		return
	}
	if !o.Visible() {
		b.reply(chatID, fmt.Sprintf("Listing %s is %s, publish it first.", o.ID, o.Status))
		return
	}

	b.SendMessage(b.cfg.BroadcastChatID, FormatOpportunity(*o))
	b.audit(ctx, actor, "opportunity.broadcast", o.ID, fmt.Sprintf("chat %d", b.cfg.BroadcastChatID))
	b.reply(chatID, fmt.Sprintf("Broadcast \"%s\".", o.Title))
}

func (b *Bot) handleSources(ctx context.Context, chatID int64) {
	sources, err := b.store.ListSources(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	counts := make(map[int64][2]int)
	for _, s := range sources {
		rules, err := b.store.ListRules(ctx, s.ID)
		if err != nil {
			continue
		}
		var inc, exc int
		for _, r := range rules {
			switch r.Kind {
			case model.RuleInclude, model.RuleIncludeRe:
				inc++
			case model.RuleExclude, model.RuleExcludeRe:
				exc++
			}
		}
		counts[s.ID] = [2]int{inc, exc}
	}

	text := FormatSourceList(sources, counts)
	if len(sources) == 0 {
		b.reply(chatID, text)
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, s := range sources {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Rules #%d", s.ID), fmt.Sprintf("%s:%d", cmdRules, s.ID)),
			tgbotapi.NewInlineKeyboardButtonData("Check", fmt.Sprintf("%s:%d", cmdCheck, s.ID)),
			tgbotapi.NewInlineKeyboardButtonData("Delete", fmt.Sprintf("%s:%d", cbRmConfirm, s.ID)),
		))
	}
	b.sendWithKeyboard(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleAddSource(ctx context.Context, chatID int64, actor, args string) {
	url, typ, err := ParseAddSourceArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /addsource <url> [JOB|INTERNSHIP|WALKIN]")
		return
	}

	feed, err := b.importer.Fetch(ctx, url)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to fetch feed: %v", err))
		return
	}

	name := feed.Title
	if name == "" {
		name = url
	}

	src := &model.Source{
		Name:            name,
		URL:             url,
		DefaultType:     typ,
		IntervalMinutes: 60,
		IsActive:        true,
	}
	if err := b.store.CreateSource(ctx, src); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save source: %v", err))
		return
	}
	b.audit(ctx, actor, "source.create", fmt.Sprint(src.ID), src.URL)

	b.reply(chatID, fmt.Sprintf("Source added!\n#%d %s [%s] (every %d min)\nURL: %s\nNo rules yet, every item is imported as a draft. Use /include, /exclude to narrow it down.",
		src.ID, src.Name, src.DefaultType, src.IntervalMinutes, src.URL))
}

func (b *Bot) loadSource(ctx context.Context, chatID int64, id int64) (*model.Source, bool) {
	src, err := b.store.GetSource(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Source #%d not found.", id))
		return nil, false
	}
	return src, true
}

func (b *Bot) handleRmSource(ctx context.Context, chatID int64, actor, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmsource <id>")
		return
	}
	src, ok := b.loadSource(ctx, chatID, id)
	if !ok {
		return
	}

	if err := b.store.DeleteSource(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting source: %v", err))
		return
	}
	b.audit(ctx, actor, "source.delete", fmt.Sprint(id), src.URL)
	b.reply(chatID, fmt.Sprintf("Source #%d \"%s\" deleted.", id, src.Name))
}

func (b *Bot) handleSetActive(ctx context.Context, chatID int64, actor, args string, active bool) {
	cmd, verb := "pause", "paused"
	if active {
		cmd, verb = "resume", "resumed"
	}

	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /%s <id>", cmd))
		return
	}
	src, ok := b.loadSource(ctx, chatID, id)
	if !ok {
		return
	}

	src.IsActive = active
	if err := b.store.UpdateSource(ctx, src); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.audit(ctx, actor, "source."+cmd, fmt.Sprint(id), "")
	b.reply(chatID, fmt.Sprintf("Source #%d \"%s\" %s.", id, src.Name, verb))
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, actor, args string) {
	id, mins, err := ParseIntervalArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	src, ok := b.loadSource(ctx, chatID, id)
	if !ok {
		return
	}

	src.IntervalMinutes = mins
	if err := b.store.UpdateSource(ctx, src); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.audit(ctx, actor, "source.interval", fmt.Sprint(id), fmt.Sprintf("%d min", mins))
	b.reply(chatID, fmt.Sprintf("Source #%d interval set to %d min.", id, mins))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /check <id>")
		return
	}
	if b.checker == nil {
		b.reply(chatID, "Importer is not running.")
		return
	}
	src, ok := b.loadSource(ctx, chatID, id)
	if !ok {
		return
	}

	n, err := b.checker.CheckSource(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Import failed: %v", err))
		return
	}
	if n == 0 {
		b.reply(chatID, fmt.Sprintf("No new matching items in #%d \"%s\".", src.ID, src.Name))
		return
	}
	b.reply(chatID, fmt.Sprintf("Imported %d new draft(s) from #%d \"%s\". Review with /drafts.", n, src.ID, src.Name))
}

func (b *Bot) handleRules(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rules <id>")
		return
	}
	src, ok := b.loadSource(ctx, chatID, id)
	if !ok {
		return
	}

	rules, _ := b.store.ListRules(ctx, src.ID)
	b.reply(chatID, FormatRuleList(src, rules))
}

func (b *Bot) handleAddRule(ctx context.Context, chatID int64, actor, args, kind string) {
	parsed, err := ParseRuleCommand(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	src, ok := b.loadSource(ctx, chatID, parsed.SourceID)
	if !ok {
		return
	}

	rk := model.RuleKind(kind)
	if rk == model.RuleIncludeRe || rk == model.RuleExcludeRe {
		if err := importer.ValidateRegex(parsed.Value); err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid regex: %v", err))
			return
		}
	}

	r := &model.Rule{
		SourceID: parsed.SourceID,
		Kind:     rk,
		Scope:    parsed.Scope,
		Value:    parsed.Value,
	}
	if err := b.store.CreateRule(ctx, r); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.audit(ctx, actor, "rule.create", fmt.Sprint(r.ID), fmt.Sprintf("source %d %s %q", src.ID, kind, parsed.Value))

	b.reply(chatID, fmt.Sprintf("Rule R%d added to #%d \"%s\": %s %s (%s)",
		r.ID, src.ID, src.Name, kind, parsed.Value, scopeLabel(parsed.Scope)))
}

func (b *Bot) handleRmRule(ctx context.Context, chatID int64, actor, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmrule <rule_id>")
		return
	}

	r, err := b.store.GetRule(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Rule R%d not found.", id))
		return
	}
	src, ok := b.loadSource(ctx, chatID, r.SourceID)
	if !ok {
		return
	}

	if err := b.store.DeleteRule(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.audit(ctx, actor, "rule.delete", fmt.Sprint(id), fmt.Sprintf("source %d", src.ID))
	b.reply(chatID, fmt.Sprintf("Rule R%d removed from #%d \"%s\".", id, src.ID, src.Name))
}
