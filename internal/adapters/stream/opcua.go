package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

// OPCUAConfig captures the runtime details required to open an OPC UA session.
type OPCUAConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	Nodes            []OPCUANode   `yaml:"nodes"`
}

// OPCUANode binds a monitored node to the topic its values are published on.
type OPCUANode struct {
	NodeID string `yaml:"node_id"`
	Topic  string `yaml:"topic"`
}

func (c *OPCUAConfig) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "MicroGuard"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 250 * time.Millisecond
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
	for i := range c.Nodes {
		if c.Nodes[i].Topic == "" {
			c.Nodes[i].Topic = c.Nodes[i].NodeID
		}
	}
}

func (c *OPCUAConfig) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	for _, n := range c.Nodes {
		if _, err := ua.ParseNodeID(n.NodeID); err != nil {
			return fmt.Errorf("parse node id %q: %w", n.NodeID, err)
		}
	}
	return nil
}

// OPCUASource publishes value changes of the configured nodes on their topics.
// The session is opened on the first Subscribe and monitors every node.
type OPCUASource struct {
	cfg OPCUAConfig
	obs ports.Observability

	mu        sync.Mutex
	client    *opcua.Client
	sub       *opcua.Subscription
	cancel    context.CancelFunc
	handleMap map[uint32]OPCUANode
	subs      map[string]map[uint64]func([]byte)
	nextID    uint64
	started   bool
	closed    bool
	wg        sync.WaitGroup
}

func NewOPCUASource(cfg OPCUAConfig, obs ports.Observability) (*OPCUASource, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &OPCUASource{
		cfg:  cfg,
		obs:  obs,
		subs: make(map[string]map[uint64]func([]byte)),
	}, nil
}

func (s *OPCUASource) Subscribe(topic string, deliver func([]byte)) (func() error, error) {
	if !s.hasTopic(topic) {
		return nil, fmt.Errorf("opcua: no node configured for topic %q", topic)
	}
	if err := s.start(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.subs[topic] == nil {
		s.subs[topic] = make(map[uint64]func([]byte))
	}
	s.subs[topic][id] = deliver
	s.mu.Unlock()

	return func() error {
		s.mu.Lock()
		delete(s.subs[topic], id)
		s.mu.Unlock()
		return nil
	}, nil
}

func (s *OPCUASource) hasTopic(topic string) bool {
	for _, n := range s.cfg.Nodes {
		if n.Topic == topic {
			return true
		}
	}
	return false
}

func (s *OPCUASource) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("opcua source closed")
	}
	if s.started {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	client, err := opcua.NewClient(s.cfg.Endpoint, s.clientOptions()...)
	if err != nil {
		cancel()
		return fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("opcua connect: %w", err)
	}

	notifyCh := make(chan *opcua.PublishNotificationData, len(s.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: s.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return fmt.Errorf("opcua subscribe: %w", err)
	}

	handleMap := make(map[uint32]OPCUANode, len(s.cfg.Nodes))
	for i, node := range s.cfg.Nodes {
		nodeID, err := ua.ParseNodeID(node.NodeID)
		if err != nil {
			cleanup(ctx, cancel, sub, client)
			return fmt.Errorf("parse node id %q: %w", node.NodeID, err)
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
		if s.cfg.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(s.cfg.SamplingInterval / time.Millisecond)
		}
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			cleanup(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q: %w", node.NodeID, err)
		}
		if len(res.Results) == 0 {
			cleanup(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q failed: empty result", node.NodeID)
		}
		if res.Results[0].StatusCode != ua.StatusOK {
			cleanup(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q failed: %s", node.NodeID, res.Results[0].StatusCode)
		}
		handleMap[handle] = node
	}

	s.client = client
	s.sub = sub
	s.cancel = cancel
	s.handleMap = handleMap
	s.started = true

	s.wg.Add(1)
	go s.consume(ctx, notifyCh)
	return nil
}

func (s *OPCUASource) Close() error {
	s.mu.Lock()
	s.closed = true
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel, sub, client := s.cancel, s.sub, s.client
	s.started = false
	s.cancel, s.sub, s.client = nil, nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()

	var err error
	if sub != nil {
		if e := sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if client != nil {
		if e := client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}

	s.wg.Wait()
	return err
}

func (s *OPCUASource) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				if s.obs != nil {
					s.obs.LogError("opcua_notification_error", notif.Error)
				}
				continue
			}
			s.dispatch(notif.Value)
		}
	}
}

func (s *OPCUASource) dispatch(val interface{}) {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return
	}
	for _, item := range data.MonitoredItems {
		s.mu.Lock()
		node, ok := s.handleMap[item.ClientHandle]
		s.mu.Unlock()
		if !ok || item.Value == nil {
			continue
		}
		payload, ok := variantPayload(item.Value.Value)
		if !ok {
			if s.obs != nil {
				s.obs.IncCounter(ports.MetricPayloadDropped, 1)
				s.obs.LogError("opcua_unsupported_value", fmt.Errorf("node %s: unsupported variant", node.NodeID))
			}
			continue
		}
		for _, deliver := range s.snapshot(node.Topic) {
			deliver(payload)
		}
	}
}

func (s *OPCUASource) snapshot(topic string) []func([]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func([]byte), 0, len(s.subs[topic]))
	for _, fn := range s.subs[topic] {
		out = append(out, fn)
	}
	return out
}

func (s *OPCUASource) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(s.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(s.cfg.SecurityPolicy)),
		opcua.ApplicationName(s.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if s.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(s.cfg.Username, s.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func cleanup(ctx context.Context, cancel context.CancelFunc, sub *opcua.Subscription, client *opcua.Client) {
	cancel()
	if sub != nil {
		_ = sub.Cancel(ctx)
	}
	if client != nil {
		_ = client.Close(ctx)
	}
}

// variantPayload renders a node value as a payload Decode understands.
func variantPayload(v *ua.Variant) ([]byte, bool) {
	if v == nil {
		return nil, false
	}
	var f float64
	switch val := v.Value().(type) {
	case float32:
		f = float64(val)
	case float64:
		f = val
	case int8:
		f = float64(val)
	case uint8:
		f = float64(val)
	case int16:
		f = float64(val)
	case uint16:
		f = float64(val)
	case int32:
		f = float64(val)
	case uint32:
		f = float64(val)
	case int64:
		f = float64(val)
	case uint64:
		f = float64(val)
	case string:
		return []byte(val), true
	default:
		return nil, false
	}
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), true
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.PushSource = (*OPCUASource)(nil)
