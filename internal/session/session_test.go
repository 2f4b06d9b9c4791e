package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edgard/cropwise/internal/assistant"
	"github.com/edgard/cropwise/internal/crop"
	apperrors "github.com/edgard/cropwise/internal/errors"
	"github.com/edgard/cropwise/internal/predictor"
	"github.com/edgard/cropwise/internal/session"
	"github.com/edgard/cropwise/internal/text"
)

const instruction = "You are an agricultural assistant."

var notices = session.Notices{
	PredictionFailed: "prediction failed",
	RemoteTransient:  "try again",
	RemoteAuth:       "bad credentials",
	RemoteQuota:      "quota reached",
}

// fakeAssistant records every request and answers with reply, or fails
// with the next queued error.
type fakeAssistant struct {
	mu       sync.Mutex
	requests []assistant.Request
	errs     []error
	reply    string
}

func (f *fakeAssistant) Complete(_ context.Context, req assistant.Request) (assistant.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return assistant.Reply{}, err
		}
	}

	return assistant.Reply{Content: f.reply, Model: "fake"}, nil
}

func (f *fakeAssistant) last() assistant.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.requests[len(f.requests)-1]
}

func (f *fakeAssistant) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.requests)
}

type fakeRecommender struct {
	err    error
	inputs []crop.InputVector
}

func (f *fakeRecommender) Recommend(_ context.Context, _, _ string, v crop.InputVector) (predictor.Recommendation, error) {
	f.inputs = append(f.inputs, v)
	if f.err != nil {
		return predictor.Recommendation{}, f.err
	}

	return predictor.Recommendation{Input: v, Label: "rice", Display: "RICE"}, nil
}

func roles(turns []session.Turn) []assistant.Role {
	out := make([]assistant.Role, len(turns))
	for i, t := range turns {
		out[i] = t.Role
	}

	return out
}

var _ = Describe("Session", func() {
	var (
		fake        *fakeAssistant
		recommender *fakeRecommender
		manager     *session.Manager
		sess        *session.Session
		ctx         context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = &fakeAssistant{reply: "Irrigate when the topsoil is dry."}
		recommender = &fakeRecommender{}
		manager = session.NewManager(session.Options{
			Assistant:   fake,
			Recommender: recommender,
			Instruction: instruction,
			Notices:     notices,
			IdleTimeout: 30 * time.Minute,
		}, nil)
		sess = manager.Create("web")
	})

	Describe("Send", func() {
		It("appends the user turn and the reply", func() {
			exchange, err := sess.Send(ctx, "When should I irrigate rice?")

			Expect(err).NotTo(HaveOccurred())
			transcript := sess.Transcript()
			Expect(transcript).To(HaveLen(2))
			Expect(transcript[0].Role).To(Equal(assistant.RoleUser))
			Expect(transcript[0].Content).To(Equal("When should I irrigate rice?"))
			Expect(transcript[1].Role).To(Equal(assistant.RoleAssistant))
			Expect(transcript[1].Content).NotTo(BeEmpty())
			Expect(exchange.Turns()).To(Equal(transcript))
		})

		It("sends the instruction outside the transcript", func() {
			_, err := sess.Send(ctx, "hello")
			Expect(err).NotTo(HaveOccurred())

			req := fake.last()
			Expect(req.Instruction).To(Equal(instruction))
			Expect(req.Messages).To(Equal([]assistant.Message{{Role: assistant.RoleUser, Content: "hello"}}))
			for _, turn := range sess.Transcript() {
				Expect(turn.Content).NotTo(Equal(instruction))
			}
		})

		It("alternates user and assistant over several exchanges", func() {
			for _, msg := range []string{"one", "two", "three"} {
				_, err := sess.Send(ctx, msg)
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(roles(sess.Transcript())).To(Equal([]assistant.Role{
				assistant.RoleUser, assistant.RoleAssistant,
				assistant.RoleUser, assistant.RoleAssistant,
				assistant.RoleUser, assistant.RoleAssistant,
			}))
			Expect(fake.last().Messages).To(HaveLen(5))
		})

		It("ignores blank messages", func() {
			exchange, err := sess.Send(ctx, "   \n\t")

			Expect(err).NotTo(HaveOccurred())
			Expect(exchange.Turns()).To(BeEmpty())
			Expect(sess.Transcript()).To(BeEmpty())
			Expect(fake.calls()).To(Equal(0))
		})

		It("trims the message", func() {
			_, err := sess.Send(ctx, "  hello  ")
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.Transcript()[0].Content).To(Equal("hello"))
		})

		Context("when the remote call fails", func() {
			BeforeEach(func() {
				fake.errs = []error{apperrors.NewRemoteServiceError(apperrors.RemoteQuota, 429, false, "quota", nil)}
			})

			It("keeps the user turn with a failure marker and no reply", func() {
				exchange, err := sess.Send(ctx, "What fertilizer for maize?")

				Expect(err).To(HaveOccurred())
				Expect(exchange.Reply).To(BeNil())
				Expect(exchange.User).NotTo(BeNil())
				Expect(exchange.User.Failure).To(Equal(&session.Failure{Kind: apperrors.RemoteQuota, Notice: "quota reached"}))

				transcript := sess.Transcript()
				Expect(transcript).To(HaveLen(1))
				Expect(transcript[0].Failed()).To(BeTrue())
			})

			It("accepts the next message and leaves the failed turn out of the context", func() {
				_, err := sess.Send(ctx, "first")
				Expect(err).To(HaveOccurred())

				_, err = sess.Send(ctx, "second")
				Expect(err).NotTo(HaveOccurred())

				Expect(fake.last().Messages).To(Equal([]assistant.Message{{Role: assistant.RoleUser, Content: "second"}}))
				Expect(roles(sess.Transcript())).To(Equal([]assistant.Role{
					assistant.RoleUser, assistant.RoleUser, assistant.RoleAssistant,
				}))
			})

			It("uses the transient notice for unclassified errors", func() {
				fake.errs = []error{errors.New("boom")}

				exchange, _ := sess.Send(ctx, "hi")
				Expect(exchange.User.Failure.Kind).To(Equal(apperrors.RemoteTransient))
				Expect(exchange.User.Failure.Notice).To(Equal("try again"))
			})
		})

		Context("with a context window", func() {
			var padded = func(s string) string { return s + strings.Repeat(".", 30-len(s)) }

			build := func(maxTokens int) *session.Session {
				fake.reply = padded("answer")
				m := session.NewManager(session.Options{
					Assistant:   fake,
					Recommender: recommender,
					Instruction: "sys",
					Window:      text.NewWindow(maxTokens, text.HeuristicCounter{}),
					Notices:     notices,
				}, nil)
				s := m.Create("tui")
				for _, msg := range []string{"q1", "q2"} {
					_, err := s.Send(ctx, padded(msg))
					Expect(err).NotTo(HaveOccurred())
				}

				return s
			}

			It("drops the oldest exchanges and starts on a user turn", func() {
				s := build(70)
				_, err := s.Send(ctx, padded("q3"))
				Expect(err).NotTo(HaveOccurred())

				messages := fake.last().Messages
				Expect(messages).To(HaveLen(3))
				Expect(messages[0]).To(Equal(assistant.Message{Role: assistant.RoleUser, Content: padded("q2")}))
				Expect(messages[2].Content).To(Equal(padded("q3")))
			})

			It("never drops the current message", func() {
				s := build(10)
				_, err := s.Send(ctx, padded("q3"))
				Expect(err).NotTo(HaveOccurred())

				Expect(fake.last().Messages).To(Equal([]assistant.Message{{Role: assistant.RoleUser, Content: padded("q3")}}))
				Expect(s.Transcript()).To(HaveLen(6))
			})
		})
	})

	Describe("Recommend", func() {
		It("predicts from the panel values", func() {
			rec, notes, err := sess.Recommend(ctx, map[crop.Field]string{
				crop.FieldNitrogen: "90", crop.FieldPhosphorus: "42", crop.FieldPotassium: "43",
				crop.FieldTemperature: "20.8", crop.FieldHumidity: "82",
				crop.FieldPH: "6.5", crop.FieldRainfall: "202.9",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(notes).To(BeEmpty())
			Expect(rec.Display).To(Equal("RICE"))
			Expect(recommender.inputs).To(ConsistOf(crop.InputVector{
				Nitrogen: 90, Phosphorus: 42, Potassium: 43,
				Temperature: 20.8, Humidity: 82, PH: 6.5, Rainfall: 202.9,
			}))

			snap := sess.Snapshot()
			Expect(snap.Recommendation).NotTo(BeNil())
			Expect(snap.Recommendation.Label).To(Equal("rice"))
		})

		It("clamps and refuses entries and flashes the notices once", func() {
			_, notes, err := sess.Recommend(ctx, map[crop.Field]string{
				crop.FieldNitrogen: "500",
				crop.FieldRainfall: "lots",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(notes).To(HaveLen(2))
			Expect(recommender.inputs[0].Nitrogen).To(Equal(140))
			Expect(recommender.inputs[0].Rainfall).To(Equal(0.0))

			Expect(sess.Snapshot().Flash).To(HaveLen(2))
			Expect(sess.Snapshot().Flash).To(BeEmpty())
		})

		It("flashes the prediction notice on failure", func() {
			recommender.err = apperrors.NewPredictionError("classifier failed", nil)

			_, _, err := sess.Recommend(ctx, nil)

			var predErr *apperrors.PredictionError
			Expect(errors.As(err, &predErr)).To(BeTrue())
			snap := sess.Snapshot()
			Expect(snap.Flash).To(ConsistOf("prediction failed"))
			Expect(snap.Recommendation).To(BeNil())
		})
	})
})

var _ = Describe("Manager", func() {
	var (
		now     time.Time
		manager *session.Manager
	)

	BeforeEach(func() {
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		manager = session.NewManager(session.Options{
			Assistant:   &fakeAssistant{reply: "ok"},
			Recommender: &fakeRecommender{},
			IdleTimeout: 30 * time.Minute,
			Clock:       func() time.Time { return now },
		}, nil)
	})

	It("creates sessions with distinct ids", func() {
		a := manager.Create("web")
		b := manager.Create("web")

		Expect(a.ID).NotTo(Equal(b.ID))
		Expect(manager.Len()).To(Equal(2))
	})

	It("returns the same session for the same id", func() {
		a := manager.GetOrCreate("chat-42", "telegram")
		b := manager.GetOrCreate("chat-42", "telegram")

		Expect(a).To(BeIdenticalTo(b))
		Expect(manager.Len()).To(Equal(1))
	})

	It("ends sessions and refuses further actions", func() {
		s := manager.Create("tui")
		_, err := s.Send(context.Background(), "hi")
		Expect(err).NotTo(HaveOccurred())

		Expect(manager.End(s.ID)).To(BeTrue())
		Expect(manager.End(s.ID)).To(BeFalse())
		Expect(s.Transcript()).To(BeEmpty())

		_, err = s.Send(context.Background(), "again")
		Expect(err).To(MatchError(session.ErrEnded))
	})

	It("reaps only idle sessions", func() {
		idle := manager.Create("web")
		now = now.Add(20 * time.Minute)
		active := manager.Create("web")
		now = now.Add(15 * time.Minute)

		Expect(manager.Reap()).To(Equal(1))

		Expect(manager.Len()).To(Equal(1))
		_, err := idle.Send(context.Background(), "hi")
		Expect(err).To(MatchError(session.ErrEnded))
		Expect(manager.GetOrCreate(active.ID, "web")).To(BeIdenticalTo(active))
	})

	It("counts activity as use", func() {
		s := manager.Create("web")
		now = now.Add(25 * time.Minute)
		_, err := s.Send(context.Background(), "still here")
		Expect(err).NotTo(HaveOccurred())
		now = now.Add(25 * time.Minute)

		Expect(manager.Reap()).To(Equal(0))
	})

	It("serializes concurrent sends on one session", func() {
		s := manager.Create("web")

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := s.Send(context.Background(), "ping")
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		transcript := s.Transcript()
		Expect(transcript).To(HaveLen(20))
		for i, turn := range transcript {
			if i%2 == 0 {
				Expect(turn.Role).To(Equal(assistant.RoleUser))
			} else {
				Expect(turn.Role).To(Equal(assistant.RoleAssistant))
			}
		}
	})
})
