package pubsub

import (
	"context"
	"encoding/json"
	"sync"

	"agones-session-orchestrator/queues"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

type Publisher struct {
	projectID  string
	eventTopic string
	credsFile  string

	mu     sync.Mutex
	client *gpubsub.Client
	topic  *gpubsub.Topic
}

func NewPublisher(projectID, eventTopic, credsFile string) *Publisher {
	return &Publisher{projectID: projectID, eventTopic: eventTopic, credsFile: credsFile}
}

func (p *Publisher) init(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return nil
	}
	var (
		client *gpubsub.Client
		err    error
	)
	if p.credsFile != "" {
		log.Debug().Str("projectID", p.projectID).Str("topic", p.eventTopic).Str("credsFile", p.credsFile).Msg("initializing pubsub publisher with explicit credentials")
		client, err = gpubsub.NewClient(ctx, p.projectID, option.WithCredentialsFile(p.credsFile))
	} else {
		log.Debug().Str("projectID", p.projectID).Str("topic", p.eventTopic).Msg("initializing pubsub publisher with default credentials")
		client, err = gpubsub.NewClient(ctx, p.projectID)
	}
	if err != nil {
		log.Error().Err(err).Str("projectID", p.projectID).Str("topic", p.eventTopic).Msg("failed to create pubsub client for publisher")
		return err
	}
	p.client = client
	p.topic = client.Topic(p.eventTopic)
	log.Info().Str("topic", p.eventTopic).Msg("pubsub publisher initialized")
	return nil
}

func (p *Publisher) PublishEvent(ctx context.Context, ev *queues.AllocationEventEnvelope) error {
	if err := p.init(ctx); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Interface("event", ev).Msg("failed to marshal allocation event")
		return err
	}
	// Publish and wait for server ack
	r := p.topic.Publish(ctx, &gpubsub.Message{Data: b})
	id, err := r.Get(ctx)
	if err != nil {
		log.Error().Err(err).Str("allocationId", ev.AllocationID).Int("lobbyId", ev.LobbyID).Msg("failed to publish allocation event")
		return err
	}
	log.Debug().Str("messageID", id).Str("allocationId", ev.AllocationID).Str("event", ev.Event).Msg("published allocation event")
	return nil
}
