// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge mirrors a polling engine onto an MQTT broker.
//
// Topics, relative to the configured prefix:
//
//	<prefix>/status                  online/offline (retained, last will)
//	<prefix>/channel/<id>/state      channel value in its text form
//	<prefix>/channel/<id>/set        commands written by other clients
//	<prefix>/device/<id>/state       JSON device state and packet loss
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Thermoquad/simplebinary/internal/config"
	"github.com/Thermoquad/simplebinary/pkg/master"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

const connectTimeout = 10 * time.Second

// Engine is the part of *master.Engine the bridge drives
type Engine interface {
	Channels() *simplebinary.ChannelSet
	Registry() *master.Registry
	Command(ctx context.Context, channelID string, v simplebinary.Value) error
	OnValue(fn master.ValueHook)
	OnState(fn master.StateHook)
}

// publisher is the outgoing half of an MQTT client
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// DeviceState is the payload published on a device state topic
type DeviceState struct {
	State             string    `json:"state"`
	PacketLoss        int       `json:"packet_loss"`
	LastCommunication time.Time `json:"last_communication"`
	Degraded          bool      `json:"degraded"`
}

// Bridge publishes values and device states and turns set messages into
// engine commands.
type Bridge struct {
	cfg    config.MQTTConfig
	engine Engine
	log    *slog.Logger

	client mqtt.Client
	pub    publisher
	ctx    context.Context
}

// New creates a bridge for an engine. The MQTT configuration must have
// been normalized.
func New(cfg config.MQTTConfig, engine Engine, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "sbmaster-" + uuid.NewString()
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = config.DefaultTopicPrefix
	}
	return &Bridge{
		cfg:    cfg,
		engine: engine,
		log:    log.With("component", "mqtt", "client_id", cfg.ClientID),
		ctx:    context.Background(),
	}
}

func (b *Bridge) topic(parts ...string) string {
	return b.cfg.TopicPrefix + "/" + strings.Join(parts, "/")
}

// Start connects to the broker, subscribes to the set topics and hooks
// into the engine. ctx bounds the commands issued from set messages.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx = ctx

	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(connectTimeout).
		SetWill(b.topic("status"), "offline", b.cfg.QoS, true).
		SetOnConnectHandler(func(c mqtt.Client) {
			b.log.Info("connected to broker", "broker", b.cfg.Broker)
			b.subscribe(c)
			_ = b.pub.Publish(b.topic("status"), b.cfg.QoS, true, []byte("online"))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.log.Warn("broker connection lost", "error", err)
		})
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username).SetPassword(b.cfg.Password)
	}

	b.client = mqtt.NewClient(opts)
	b.pub = &clientPublisher{client: b.client}

	token := b.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		b.log.Warn("broker not reachable yet, retrying in background", "broker", b.cfg.Broker)
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("connecting to %s: %w", b.cfg.Broker, err)
	}

	b.attach()
	return nil
}

// Stop announces the bridge offline and disconnects
func (b *Bridge) Stop() {
	if b.client == nil {
		return
	}
	if b.client.IsConnected() {
		t := b.client.Publish(b.topic("status"), b.cfg.QoS, true, "offline")
		t.WaitTimeout(time.Second)
	}
	b.client.Disconnect(250)
}

func (b *Bridge) subscribe(c mqtt.Client) {
	filter := b.topic("channel", "+", "set")
	t := c.Subscribe(filter, b.cfg.QoS, func(_ mqtt.Client, m mqtt.Message) {
		b.handleSet(m.Topic(), m.Payload())
	})
	if t.WaitTimeout(connectTimeout) && t.Error() != nil {
		b.log.Error("subscribe failed", "topic", filter, "error", t.Error())
	}
}

// attach registers the engine hooks
func (b *Bridge) attach() {
	b.engine.OnValue(b.publishValue)
	b.engine.OnState(b.publishState)
}

func (b *Bridge) publishValue(ch *simplebinary.Channel, v simplebinary.Value) {
	topic := b.topic("channel", ch.ID, "state")
	if err := b.pub.Publish(topic, b.cfg.QoS, b.cfg.Retain, []byte(v.String())); err != nil {
		b.log.Warn("publish failed", "topic", topic, "error", err)
	}
}

func (b *Bridge) publishState(deviceID uint8, state master.State) {
	payload := DeviceState{State: state.String()}
	if dev, ok := b.engine.Registry().Lookup(deviceID); ok {
		info := dev.Info()
		payload.PacketLoss = info.PacketLoss
		payload.LastCommunication = info.LastCommunication
		payload.Degraded = info.Degraded
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("encoding device state", "device", deviceID, "error", err)
		return
	}
	topic := b.topic("device", strconv.Itoa(int(deviceID)), "state")
	if err := b.pub.Publish(topic, b.cfg.QoS, true, data); err != nil {
		b.log.Warn("publish failed", "topic", topic, "error", err)
	}
}

// handleSet parses <prefix>/channel/<id>/set and queues the command
func (b *Bridge) handleSet(topic string, payload []byte) {
	rest, ok := strings.CutPrefix(topic, b.cfg.TopicPrefix+"/channel/")
	if !ok {
		return
	}
	id, ok := strings.CutSuffix(rest, "/set")
	if !ok || id == "" || strings.Contains(id, "/") {
		return
	}

	ch := b.engine.Channels().Get(id)
	if ch == nil {
		b.log.Warn("set for unknown channel", "channel", id)
		return
	}
	v, err := simplebinary.ParseValue(ch, string(payload))
	if err != nil {
		b.log.Warn("invalid command payload", "channel", id, "payload", string(payload), "error", err)
		return
	}
	if err := b.engine.Command(b.ctx, id, v); err != nil {
		b.log.Warn("command rejected", "channel", id, "value", v.String(), "error", err)
		return
	}
	b.log.Debug("command queued", "channel", id, "value", v.String())
}

// clientPublisher adapts a paho client. Publish must not block: engine
// hooks run inside the poll cycle.
type clientPublisher struct {
	client mqtt.Client
}

func (p *clientPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		return fmt.Errorf("not connected")
	}
	t := p.client.Publish(topic, qos, retained, payload)
	select {
	case <-t.Done():
		return t.Error()
	default:
		return nil
	}
}
