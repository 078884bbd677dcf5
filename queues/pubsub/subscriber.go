package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"agones-session-orchestrator/queues"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

type Subscriber struct {
	projectID        string
	subscriptionName string
	credsFile        string
	client           *gpubsub.Client
	sub              *gpubsub.Subscription
}

func NewSubscriber(projectID, subscriptionName, credsFile string) *Subscriber {
	return &Subscriber{projectID: projectID, subscriptionName: subscriptionName, credsFile: credsFile}
}

func (s *Subscriber) Start(ctx context.Context, handler func(context.Context, *queues.MatchEnvelope) error) error {
	if s.client == nil {
		var (
			client *gpubsub.Client
			err    error
		)
		if s.credsFile != "" {
			log.Debug().Str("projectID", s.projectID).Str("subscription", s.subscriptionName).Str("credsFile", s.credsFile).Msg("initializing pubsub subscriber with explicit credentials")
			client, err = gpubsub.NewClient(ctx, s.projectID, option.WithCredentialsFile(s.credsFile))
		} else {
			log.Debug().Str("projectID", s.projectID).Str("subscription", s.subscriptionName).Msg("initializing pubsub subscriber with default credentials")
			client, err = gpubsub.NewClient(ctx, s.projectID)
		}
		if err != nil {
			log.Error().Err(err).Str("projectID", s.projectID).Str("subscription", s.subscriptionName).Msg("failed to create pubsub client for subscriber")
			return err
		}
		s.client = client
		s.sub = client.Subscription(s.subscriptionName)
		log.Info().Str("subscription", s.subscriptionName).Msg("pubsub subscriber initialized")
	}

	// Receive blocks; it will create goroutines internally; respect ctx cancellation
	return s.sub.Receive(ctx, func(ctx context.Context, m *gpubsub.Message) {
		log.Debug().Str("messageID", m.ID).Int("size", len(m.Data)).Msg("received pubsub message")
		recvAt := time.Now()
		var env queues.MatchEnvelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			log.Error().Err(err).Msg("failed to unmarshal match envelope")
			// Nack to allow retry
			m.Nack()
			return
		}
		if !validEnvelope(&env) {
			log.Error().Str("type", string(env.Type)).Str("matchId", env.MatchID).Int("lobbyId", env.LobbyID).Msg("invalid envelope payload")
			// Ack to drop bad message (poison)
			m.Ack()
			return
		}

		log.Info().Str("type", string(env.Type)).Str("matchId", env.MatchID).Int("lobbyId", env.LobbyID).Msg("handling match envelope")
		if err := handler(ctx, &env); err != nil {
			log.Error().Err(err).Str("type", string(env.Type)).Str("matchId", env.MatchID).Msg("handler failed; will retry")
			m.Nack()
			return
		}
		log.Debug().Str("type", string(env.Type)).Dur("latency", time.Since(recvAt)).Msg("handler succeeded; acking message")
		m.Ack()
	})
}

func validEnvelope(env *queues.MatchEnvelope) bool {
	switch env.Type {
	case queues.TypeMatchRegistered:
		return env.MatchID != "" && env.LobbyID != 0
	case queues.TypeMatchUnregistered:
		return env.MatchID != ""
	case queues.TypeServerStatus:
		return env.LobbyID != 0 && env.Status != nil
	default:
		return false
	}
}
