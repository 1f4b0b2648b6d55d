package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	rtsup "herald/internal/runtime/supervisor"
	kit "herald/internal/transport"
	logx "herald/pkg/logx"
)

type Config struct {
	Token string
}

// Adapter connects to the Discord gateway and exposes the cached guild
// directory plus outbound message operations.
type Adapter struct {
	cfg Config
	log logx.Logger

	session *discordgo.Session
	out     atomic.Value // chan<- kit.Update

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
	removes []func()

	readyOnce sync.Once
	ready     chan struct{}

	// droppedUpdates counts inbound messages dropped because the consumer was slow.
	droppedUpdates atomic.Uint64
}

var _ kit.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	s.StateEnabled = true

	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "discord")),
		session: s,
		ready:   make(chan struct{}),
	}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	return a, nil
}

func (a *Adapter) Ready() <-chan struct{} { return a.ready }

func (a *Adapter) registerHandlers() {
	a.removes = append(a.removes,
		a.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
			a.log.Info("gateway ready",
				logx.String("user", r.User.Username),
				logx.Int("guilds", len(r.Guilds)),
			)
			a.readyOnce.Do(func() { close(a.ready) })
		}),
		a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
			if m == nil || m.Message == nil || m.Author == nil {
				return
			}
			if m.Author.Bot || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
				return
			}
			a.sendUpdate(kit.Update{
				Kind: kit.UpdateMessage,
				Message: &kit.Message{
					ID:            m.ID,
					GuildID:       m.GuildID,
					ChannelID:     m.ChannelID,
					AuthorID:      m.Author.ID,
					AuthorMention: m.Author.Mention(),
					Content:       m.Content,
					At:            m.Timestamp,
				},
			})
		}),
	)
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.out.Store(out)
	a.registerHandlers()
	if err := a.session.Open(); err != nil {
		for _, rm := range a.removes {
			rm()
		}
		a.removes = nil
		return fmt.Errorf("discord gateway: %w", err)
	}
	a.running = true

	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))
	a.sup.Go0("updates.drop_report", func(c context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		report := func() {
			if n := a.droppedUpdates.Swap(0); n > 0 {
				a.log.Warn("incoming messages dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-t.C:
				report()
			}
		}
	})
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	removes := a.removes
	a.removes = nil
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	for _, rm := range removes {
		rm()
	}
	err := a.session.Close()
	if sup != nil {
		if werr := sup.Stop(ctx); werr != nil && !errors.Is(werr, context.Canceled) {
			a.log.Warn("adapter goroutines did not stop in time", logx.Err(werr))
		}
	}
	a.log.Info("gateway closed")
	return err
}

func (a *Adapter) Guilds() []kit.Guild {
	st := a.session.State
	if st == nil {
		return nil
	}
	st.RLock()
	defer st.RUnlock()
	out := make([]kit.Guild, 0, len(st.Guilds))
	for _, g := range st.Guilds {
		if g == nil {
			continue
		}
		out = append(out, kit.Guild{ID: g.ID, Name: g.Name})
	}
	return out
}

// Channels lists the text channels of a cached guild.
func (a *Adapter) Channels(guildID string) []kit.Channel {
	st := a.session.State
	if st == nil {
		return nil
	}
	st.RLock()
	defer st.RUnlock()
	var g *discordgo.Guild
	for _, cand := range st.Guilds {
		if cand != nil && cand.ID == guildID {
			g = cand
			break
		}
	}
	if g == nil {
		return nil
	}
	out := make([]kit.Channel, 0, len(g.Channels))
	for _, c := range g.Channels {
		if c == nil || (c.Type != discordgo.ChannelTypeGuildText && c.Type != discordgo.ChannelTypeGuildNews) {
			continue
		}
		out = append(out, kit.Channel{ID: c.ID, GuildID: guildID, Name: c.Name})
	}
	return out
}

func (a *Adapter) Send(ctx context.Context, channelID string, msg kit.OutgoingMessage) (kit.MessageRef, error) {
	m, err := a.session.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChannelID: m.ChannelID, MessageID: m.ID}, nil
}

func (a *Adapter) Pin(ctx context.Context, ref kit.MessageRef) error {
	return a.session.ChannelMessagePin(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
}

func (a *Adapter) Reply(ctx context.Context, to *kit.Message, text string) error {
	if to == nil {
		return errors.New("reply: no message")
	}
	ref := &discordgo.MessageReference{MessageID: to.ID, ChannelID: to.ChannelID, GuildID: to.GuildID}
	_, err := a.session.ChannelMessageSendReply(to.ChannelID, text, ref, discordgo.WithContext(ctx))
	return err
}

func toMessageSend(msg kit.OutgoingMessage) *discordgo.MessageSend {
	data := &discordgo.MessageSend{Content: msg.Content}
	if p := msg.Poll; p != nil {
		answers := make([]discordgo.PollAnswer, 0, len(p.Answers))
		for _, a := range p.Answers {
			answers = append(answers, discordgo.PollAnswer{Media: &discordgo.PollMedia{Text: a}})
		}
		data.Poll = &discordgo.Poll{
			Question:         discordgo.PollMedia{Text: p.Question},
			Answers:          answers,
			AllowMultiselect: p.MultiSelect,
			Duration:         pollHours(p.Duration),
		}
		return data
	}
	for _, f := range msg.Files {
		data.Files = append(data.Files, &discordgo.File{Name: f.Name, ContentType: f.ContentType, Reader: f.Reader})
	}
	return data
}

// pollHours rounds up to whole hours, the unit the API accepts.
func pollHours(d time.Duration) int {
	h := int((d + time.Hour - 1) / time.Hour)
	return max(h, 1)
}
