package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/spawnoracle/internal/bosses"
	"github.com/rewired-gh/spawnoracle/internal/engine"
	"github.com/rewired-gh/spawnoracle/internal/logger"
	"github.com/rewired-gh/spawnoracle/internal/models"
)

// Engine is the part of engine.Engine the bot commands use
type Engine interface {
	GetChance(ctx context.Context, name string) (models.SpawnEstimate, error)
	ChanceAll(ctx context.Context) ([]models.SpawnEstimate, []engine.EvaluationError, error)
	RecordKill(ctx context.Context, name string, at time.Time) (models.Appearance, error)
	RevertLastKill(ctx context.Context, name string) (models.Appearance, error)
	ConfigureBoss(ctx context.Context, name string, minDays, maxDays int) (models.BossConfig, error)
	PurgeBoss(ctx context.Context, name string) error
	LastAppearances(ctx context.Context, name string, n int) ([]models.Appearance, error)
	MarkChecked(ctx context.Context, name, checker string) error
	ParseKillTime(s string) (time.Time, error)
	Now() time.Time
	Location() *time.Location
	Precision() int
}

const helpText = `*Commands*
/chance <boss> \- spawn chance today
/table \- all bosses
/kill <boss> \[date \[time\]\] \- record a kill, default now
/revert <boss> \- delete the newest record
/last <boss> \- three newest records
/config <boss> <min> <max> \- set the respawn window in days
/purge <boss> \- delete a boss and its history
/checked <boss> \- mark the boss as checked in\-game`

// Handler executes bot commands against the engine
type Handler struct {
	engine Engine
	rules  bosses.CategoryRules
}

// NewHandler creates a command handler
func NewHandler(e Engine, rules bosses.CategoryRules) *Handler {
	return &Handler{engine: e, rules: rules}
}

// Handle runs one command and returns the MarkdownV2 reply. user names the sender
// for /checked.
func (h *Handler) Handle(ctx context.Context, command, args, user string) string {
	args = strings.TrimSpace(args)
	logger.Debug("Telegram command /%s %q from %s", command, args, user)

	var reply string
	var err error
	switch command {
	case "chance":
		reply, err = h.chance(ctx, args)
	case "table":
		reply, err = h.table(ctx)
	case "kill":
		reply, err = h.kill(ctx, args)
	case "revert":
		reply, err = h.revert(ctx, args)
	case "last":
		reply, err = h.last(ctx, args)
	case "config":
		reply, err = h.configure(ctx, args)
	case "purge":
		reply, err = h.purge(ctx, args)
	case "checked":
		reply, err = h.checked(ctx, args, user)
	case "help", "start":
		return helpText
	default:
		return "Unknown command\\. " + helpText
	}

	if err != nil {
		return describeError(err)
	}
	return reply
}

func describeError(err error) string {
	switch {
	case errors.Is(err, errUsage):
		return "⚠️ " + escapeMarkdownV2(err.Error())
	case errors.Is(err, models.ErrValidation):
		return "⚠️ " + escapeMarkdownV2(err.Error())
	case errors.Is(err, models.ErrNotFound):
		return "🔍 " + escapeMarkdownV2(err.Error())
	default:
		logger.Error("Telegram command failed: %v", err)
		return "❌ Internal error, see logs\\."
	}
}

var errUsage = errors.New("usage")

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}

func requireName(args, format string) (string, error) {
	if args == "" {
		return "", usage(format)
	}
	return args, nil
}

func (h *Handler) chance(ctx context.Context, args string) (string, error) {
	name, err := requireName(args, "/chance <boss>")
	if err != nil {
		return "", err
	}
	est, err := h.engine.GetChance(ctx, name)
	if err != nil {
		return "", err
	}
	return formatChance(est, h.engine.Precision(), h.engine.Now()), nil
}

func (h *Handler) table(ctx context.Context) (string, error) {
	estimates, evalErrors, err := h.engine.ChanceAll(ctx)
	if err != nil {
		return "", err
	}
	normal, groups := bosses.SeparateByCategory(estimates, h.rules)
	msg := formatTable(normal, groups, h.engine.Precision(), h.engine.Now())
	if len(evalErrors) > 0 {
		msg += fmt.Sprintf("\n⚠️ %d bosses could not be evaluated\n", len(evalErrors))
	}
	return msg, nil
}

func (h *Handler) kill(ctx context.Context, args string) (string, error) {
	name, at, err := h.splitNameAndTime(args)
	if err != nil {
		return "", err
	}
	a, err := h.engine.RecordKill(ctx, name, at)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Recorded %s at %s", escapeMarkdownV2(a.BossName),
		escapeMarkdownV2(a.AppearanceDate.In(h.engine.Location()).Format("2006-01-02 15:04"))), nil
}

// splitNameAndTime separates a trailing "date [time]" from the boss name. Without a
// trailing timestamp the kill time is now.
func (h *Handler) splitNameAndTime(args string) (string, time.Time, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", time.Time{}, usage("/kill <boss> [YYYY-MM-DD [HH:MM]]")
	}

	for _, n := range []int{2, 1} {
		if len(fields) <= n {
			continue
		}
		at, err := h.engine.ParseKillTime(strings.Join(fields[len(fields)-n:], " "))
		if err == nil {
			return strings.Join(fields[:len(fields)-n], " "), at, nil
		}
	}
	return args, time.Time{}, nil
}

func (h *Handler) revert(ctx context.Context, args string) (string, error) {
	name, err := requireName(args, "/revert <boss>")
	if err != nil {
		return "", err
	}
	a, err := h.engine.RevertLastKill(ctx, name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("↩️ Deleted %s record of %s at %s", escapeMarkdownV2(a.Source), escapeMarkdownV2(a.BossName),
		escapeMarkdownV2(a.AppearanceDate.In(h.engine.Location()).Format("2006-01-02 15:04"))), nil
}

func (h *Handler) last(ctx context.Context, args string) (string, error) {
	name, err := requireName(args, "/last <boss>")
	if err != nil {
		return "", err
	}
	list, err := h.engine.LastAppearances(ctx, name, engine.DefaultLastAppearances)
	if err != nil {
		return "", err
	}
	return formatAppearances(bosses.CanonicalName(name), list, h.engine.Location()), nil
}

func (h *Handler) configure(ctx context.Context, args string) (string, error) {
	const format = "/config <boss> <min_days> <max_days>"
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return "", usage(format)
	}
	minDays, err1 := strconv.Atoi(fields[len(fields)-2])
	maxDays, err2 := strconv.Atoi(fields[len(fields)-1])
	if err1 != nil || err2 != nil {
		return "", usage(format)
	}

	cfg, err := h.engine.ConfigureBoss(ctx, strings.Join(fields[:len(fields)-2], " "), minDays, maxDays)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("⚙️ %s respawns after %d to %d days", escapeMarkdownV2(cfg.BossName), cfg.MinDays, cfg.MaxDays), nil
}

func (h *Handler) purge(ctx context.Context, args string) (string, error) {
	name, err := requireName(args, "/purge <boss>")
	if err != nil {
		return "", err
	}
	if err := h.engine.PurgeBoss(ctx, name); err != nil {
		return "", err
	}
	return fmt.Sprintf("🗑 Purged %s", escapeMarkdownV2(bosses.CanonicalName(name))), nil
}

func (h *Handler) checked(ctx context.Context, args, user string) (string, error) {
	name, err := requireName(args, "/checked <boss>")
	if err != nil {
		return "", err
	}
	if err := h.engine.MarkChecked(ctx, name, user); err != nil {
		return "", err
	}
	return fmt.Sprintf("🟩 %s checked by %s", escapeMarkdownV2(bosses.CanonicalName(name)), escapeMarkdownV2(user)), nil
}
