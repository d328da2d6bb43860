package notify

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"
	"github.com/thereayou/roomcoord/internal/metrics"
	"github.com/thereayou/roomcoord/internal/models"
)

const (
	// EveryoneMention упоминание всех зарегистрированных пользователей
	EveryoneMention = "@everyone"

	previewRunes    = 100
	dispatchTimeout = 30 * time.Second
)

var mentionPattern = regexp.MustCompile(`(?:^|[^\w@])@([\w.-]+)`)

// ExtractMentions возвращает уникальные имена из @name в порядке появления.
func ExtractMentions(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimRight(m[1], ".-")
		if name == "" || name == "everyone" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func MentionsEveryone(text string) bool {
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		if m[1] == "everyone" {
			return true
		}
	}
	return false
}

// Provider внешний сервис доставки push-уведомлений.
type Provider interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// Directory источник получателей и их токенов.
type Directory interface {
	ChannelMembers(channelID uuid.UUID) ([]string, error)
	ListUsernames() ([]string, error)
	PushTokens(usernames []string) ([]models.PushToken, error)
}

// Notification задание рассылки по уже сохраненному сообщению.
type Notification struct {
	RoomID      string
	Channel     *models.Channel
	Message     *models.Message
	AuthorName  string
	MentionsAll bool
}

type Dispatcher struct {
	dir         Directory
	provider    Provider
	concurrency int
	log         *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(dir Directory, provider Provider, concurrency int, log *zap.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Dispatcher{
		dir:         dir,
		provider:    provider,
		concurrency: concurrency,
		log:         log.Named("notify"),
	}
}

// Schedule запускает рассылку в фоне и сразу возвращает управление.
// После Close задания отбрасываются.
func (d *Dispatcher) Schedule(n Notification) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("fanout_dropped_after_close", zap.String("message_id", n.Message.ID.String()))
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		if err := d.Dispatch(ctx, n); err != nil {
			d.log.Warn("fanout_failed",
				zap.String("message_id", n.Message.ID.String()),
				zap.Error(err))
		}
	}()
}

// Close перестает принимать задания и дожидается запущенных рассылок.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}

// Dispatch отправляет уведомления; ошибки отдельных токенов только логируются.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	recipients, err := d.Recipients(n)
	if err != nil {
		return fmt.Errorf("resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil
	}

	tokens, err := d.dir.PushTokens(recipients)
	if err != nil {
		return fmt.Errorf("load push tokens: %w", err)
	}

	title := n.AuthorName
	if !n.Channel.IsDirect() {
		title = fmt.Sprintf("%s in #%s", n.AuthorName, n.Channel.Name)
	}
	body := Preview(n.Message.Content, previewRunes)
	if body == "" {
		if f := n.Message.Sidecars().File; f != nil {
			body = "📎 " + f.Name
		}
	}
	data := map[string]string{
		"room_id":    n.RoomID,
		"channel_id": n.Channel.ID.String(),
		"message_id": n.Message.ID.String(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, t := range tokens {
		t := t
		g.Go(func() error {
			if err := d.provider.Send(gctx, t.Token, title, body, data); err != nil {
				metrics.PushDispatches.WithLabelValues("error").Inc()
				d.log.Warn("push_failed",
					zap.String("username", t.Username),
					zap.String("platform", t.Platform),
					zap.Error(err))
				return nil
			}
			metrics.PushDispatches.WithLabelValues("ok").Inc()
			return nil
		})
	}
	return g.Wait()
}

// Recipients: для direct-канала все участники кроме автора; для публичного упомянутые
// (или все пользователи при @everyone), тоже без автора.
func (d *Dispatcher) Recipients(n Notification) ([]string, error) {
	set := make(map[string]bool)

	if n.Channel.IsDirect() {
		members, err := d.dir.ChannelMembers(n.Channel.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			set[m] = true
		}
	} else {
		for _, m := range n.Message.Mentions {
			set[m] = true
		}
		if n.MentionsAll {
			all, err := d.dir.ListUsernames()
			if err != nil {
				return nil, err
			}
			for _, u := range all {
				set[u] = true
			}
		}
	}
	delete(set, n.Message.Username)

	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

// Preview обрезает текст до max рун.
func Preview(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
