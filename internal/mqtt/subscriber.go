package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"bms-monitor/internal/ingest"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscriber receives reading batches pushed by sites over MQTT. Topics are
// <prefix>/<site_id>/readings and payloads are the same JSON envelope the
// HTTP ingest endpoint accepts. There is no reply channel, so rejected
// batches are logged and dropped.
type Subscriber struct {
	client      mqtt.Client
	service     *ingest.Service
	topicPrefix string
	enabled     bool
}

type SubscriberConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
	Service     *ingest.Service
}

func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if !cfg.Enabled {
		return &Subscriber{enabled: false}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Println("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Subscriber{
		client:      client,
		service:     cfg.Service,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
	}, nil
}

func (s *Subscriber) Subscribe() error {
	if !s.enabled {
		return nil
	}

	topic := fmt.Sprintf("%s/+/readings", s.topicPrefix)
	token := s.client.Subscribe(topic, 1, s.handleMessage)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}

	log.Printf("MQTT subscribed to %s", topic)
	return nil
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	siteID, err := siteFromTopic(msg.Topic())
	if err != nil {
		log.Printf("MQTT ignored message on %s: %v", msg.Topic(), err)
		return
	}

	var batch ingest.Batch
	if err := json.Unmarshal(msg.Payload(), &batch); err != nil {
		log.Printf("MQTT ignored malformed payload on %s: %v", msg.Topic(), err)
		return
	}

	// The topic segment is authoritative; a conflicting body is dropped.
	if batch.SiteID != 0 && batch.SiteID != siteID {
		log.Printf("MQTT ignored batch: topic site %d does not match body site %d", siteID, batch.SiteID)
		return
	}
	batch.SiteID = siteID

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.service.Ingest(ctx, batch); err != nil {
		log.Printf("MQTT ingest failed for site %d: %v", siteID, err)
	}
}

func siteFromTopic(topic string) (uint, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return 0, fmt.Errorf("unexpected topic shape")
	}
	id, err := strconv.ParseUint(parts[len(parts)-2], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("site segment is not an id: %w", err)
	}
	return uint(id), nil
}

func (s *Subscriber) IsConnected() bool {
	if !s.enabled {
		return false
	}
	return s.client.IsConnected()
}

func (s *Subscriber) Close() {
	if s.enabled && s.client != nil {
		s.client.Disconnect(1000)
	}
}
