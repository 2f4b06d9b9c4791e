package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/cropwise/internal/assistant"
	"github.com/edgard/cropwise/internal/config"
	"github.com/edgard/cropwise/internal/crop"
	apperrors "github.com/edgard/cropwise/internal/errors"
	"github.com/edgard/cropwise/internal/predictor"
	"github.com/edgard/cropwise/internal/session"
)

// fakeAPI records sendMessage calls made against it.
type fakeAPI struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		return
	}

	var text string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		text = body.Text
	} else {
		_ = r.ParseMultipartForm(1 << 20)
		text = r.FormValue("text")
	}

	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
}

func (f *fakeAPI) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.texts...)
}

type stubRecommender struct{ err error }

func (s stubRecommender) Recommend(_ context.Context, _, _ string, v crop.InputVector) (predictor.Recommendation, error) {
	if s.err != nil {
		return predictor.Recommendation{}, s.err
	}

	return predictor.Recommendation{Input: v, Label: "rice", Display: "RICE"}, nil
}

var messages = config.MessagesConfig{
	Welcome:          "welcome",
	Help:             "help text",
	PredictionFailed: "prediction failed",
	RemoteTransient:  "try again",
	RemoteAuth:       "bad credentials",
	RemoteQuota:      "quota reached",
	RecommendUsage:   "usage",
}

func newTestBot(t *testing.T, api *fakeAPI) *bot.Bot {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	b, err := bot.New("123:test", bot.WithSkipGetMe(), bot.WithServerURL(srv.URL))
	if err != nil {
		t.Fatalf("bot.New() error = %v", err)
	}

	return b
}

func newDeps(client assistant.Client, rec session.Recommender) (HandlerDeps, *session.Manager) {
	sessions := session.NewManager(session.Options{
		Assistant:   client,
		Recommender: rec,
		Instruction: config.DefaultInstruction,
		Notices:     session.NoticesFrom(messages),
	}, nil)

	return HandlerDeps{Messages: messages, Sessions: sessions}, sessions
}

func textUpdate(chatID int64, text string) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   1,
			Chat: models.Chat{ID: chatID, Type: models.ChatTypePrivate},
			From: &models.User{ID: 7},
			Text: text,
		},
	}
}

func TestParseRecommendArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		want    map[crop.Field]string
		wantErr bool
	}{
		{
			name: "seven values",
			text: "/recommend 90 42 43 20.8 82 6.5 202.9",
			want: map[crop.Field]string{
				crop.FieldNitrogen: "90", crop.FieldPhosphorus: "42", crop.FieldPotassium: "43",
				crop.FieldTemperature: "20.8", crop.FieldHumidity: "82", crop.FieldPH: "6.5", crop.FieldRainfall: "202.9",
			},
		},
		{name: "too few", text: "/recommend 90 42", wantErr: true},
		{name: "too many", text: "/recommend 1 2 3 4 5 6 7 8", wantErr: true},
		{name: "no values", text: "/recommend", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseRecommendArgs(tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrRecommendUsage) {
					t.Fatalf("ParseRecommendArgs() error = %v, want ErrRecommendUsage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRecommendArgs() error = %v", err)
			}
			for field, raw := range tt.want {
				if got[field] != raw {
					t.Errorf("entry %s = %q, want %q", field, got[field], raw)
				}
			}
		})
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "short", text: "hello", limit: 10, want: []string{"hello"}},
		{name: "empty", text: "", limit: 10, want: nil},
		{name: "hard cut", text: "abcdefgh", limit: 3, want: []string{"abc", "def", "gh"}},
		{name: "newline cut", text: "ab\ncdef", limit: 4, want: []string{"ab\n", "cdef"}},
		{name: "multibyte", text: "ééééé", limit: 2, want: []string{"éé", "éé", "é"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := splitMessage(tt.text, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("splitMessage() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("part %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestHandlers(t *testing.T) {
	t.Parallel()

	echo := assistant.ClientFunc(func(_ context.Context, req assistant.Request) (assistant.Reply, error) {
		return assistant.Reply{Content: "answer to " + req.Messages[len(req.Messages)-1].Content}, nil
	})

	t.Run("start and help", func(t *testing.T) {
		t.Parallel()

		api := &fakeAPI{}
		b := newTestBot(t, api)
		deps, _ := newDeps(echo, stubRecommender{})

		NewStartHandler(deps)(context.Background(), b, textUpdate(42, "/start"))
		NewHelpHandler(deps)(context.Background(), b, textUpdate(42, "/help"))

		got := api.sent()
		if len(got) != 2 || got[0] != "welcome" || got[1] != "help text" {
			t.Errorf("sent = %q", got)
		}
	})

	t.Run("recommend", func(t *testing.T) {
		t.Parallel()

		api := &fakeAPI{}
		b := newTestBot(t, api)
		deps, _ := newDeps(echo, stubRecommender{})

		NewRecommendHandler(deps)(context.Background(), b, textUpdate(42, "/recommend 90 42 43 20.8 82 6.5 202.9"))

		got := api.sent()
		if len(got) != 1 || !strings.Contains(got[0], "Recommended Crop: RICE") {
			t.Errorf("sent = %q", got)
		}
	})

	t.Run("recommend clamps", func(t *testing.T) {
		t.Parallel()

		api := &fakeAPI{}
		b := newTestBot(t, api)
		deps, _ := newDeps(echo, stubRecommender{})

		NewRecommendHandler(deps)(context.Background(), b, textUpdate(42, "/recommend 900 42 43 20.8 82 6.5 202.9"))

		got := api.sent()
		if len(got) != 1 || !strings.Contains(got[0], "limited to 140") || !strings.Contains(got[0], "RICE") {
			t.Errorf("sent = %q", got)
		}
	})

	t.Run("recommend usage", func(t *testing.T) {
		t.Parallel()

		api := &fakeAPI{}
		b := newTestBot(t, api)
		deps, _ := newDeps(echo, stubRecommender{})

		NewRecommendHandler(deps)(context.Background(), b, textUpdate(42, "/recommend 1 2"))

		if got := api.sent(); len(got) != 1 || got[0] != "usage" {
			t.Errorf("sent = %q", got)
		}
	})

	t.Run("recommend failure", func(t *testing.T) {
		t.Parallel()

		api := &fakeAPI{}
		b := newTestBot(t, api)
		deps, _ := newDeps(echo, stubRecommender{err: apperrors.NewPredictionError("boom", nil)})

		NewRecommendHandler(deps)(context.Background(), b, textUpdate(42, "/recommend 1 2 3 4 5 6 7"))

		if got := api.sent(); len(got) != 1 || got[0] != "prediction failed" {
			t.Errorf("sent = %q", got)
		}
	})

	t.Run("chat per chat id", func(t *testing.T) {
		t.Parallel()

		api := &fakeAPI{}
		b := newTestBot(t, api)
		deps, sessions := newDeps(echo, stubRecommender{})
		chat := NewChatHandler(deps)

		chat(context.Background(), b, textUpdate(42, "When should I irrigate rice?"))
		chat(context.Background(), b, textUpdate(42, "And wheat?"))
		chat(context.Background(), b, textUpdate(43, "Hello"))
		chat(context.Background(), b, textUpdate(43, "   "))

		got := api.sent()
		if len(got) != 3 || got[0] != "answer to When should I irrigate rice?" {
			t.Errorf("sent = %q", got)
		}

		if n := len(sessions.GetOrCreate("telegram-42", Surface).Transcript()); n != 4 {
			t.Errorf("chat 42 transcript has %d turns, want 4", n)
		}
		if n := len(sessions.GetOrCreate("telegram-43", Surface).Transcript()); n != 2 {
			t.Errorf("chat 43 transcript has %d turns, want 2", n)
		}
		if n := sessions.Len(); n != 2 {
			t.Errorf("live sessions = %d, want 2", n)
		}
	})

	t.Run("chat failure notice", func(t *testing.T) {
		t.Parallel()

		api := &fakeAPI{}
		b := newTestBot(t, api)
		failing := assistant.ClientFunc(func(context.Context, assistant.Request) (assistant.Reply, error) {
			return assistant.Reply{}, apperrors.NewRemoteServiceError(apperrors.RemoteAuth, http.StatusUnauthorized, false, "unauthorized", nil)
		})
		deps, _ := newDeps(failing, stubRecommender{})

		NewChatHandler(deps)(context.Background(), b, textUpdate(42, "hello"))

		if got := api.sent(); len(got) != 1 || got[0] != "bad credentials" {
			t.Errorf("sent = %q", got)
		}
	})
}
