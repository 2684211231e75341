package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	alertapp "parking-monitor/internal/alerts/application"
	alerts "parking-monitor/internal/alerts/domain"
	masterdata "parking-monitor/internal/masterdata/domain"
	"parking-monitor/internal/observability/metrics"
)

const eventEscalated = "escalated"

// DeviceReader resolves device placement for notification context.
type DeviceReader interface {
	Lookup(ctx context.Context, code string) (*masterdata.Device, error)
}

// AlertReader loads alert records.
type AlertReader interface {
	GetByID(ctx context.Context, id string) (*alerts.Alert, error)
}

// Clock provides time for scheduling.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alert events through a template, sends them via a channel
// and escalates critical alerts that stay unacknowledged.
type Notifier struct {
	devices        DeviceReader
	alerts         AlertReader
	channel        Channel
	channelName    string
	template       *Template
	escalation     time.Duration
	clock          Clock
	logger         zerolog.Logger
	mu             sync.Mutex
	timers         map[string]*time.Timer
	sent           map[string]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	dashboardURL   string
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithEscalation configures escalation delay for critical alerts.
func WithEscalation(after time.Duration) Option {
	return func(n *Notifier) {
		if after > 0 {
			n.escalation = after
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithRequestTimeout overrides the default timeout for escalation checks.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same alert and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithDashboardURL adds a dashboard link to notifications.
func WithDashboardURL(url string) Option {
	return func(n *Notifier) {
		n.dashboardURL = url
	}
}

// WithDeviceReader enriches notifications with zone and slot.
func WithDeviceReader(devices DeviceReader) Option {
	return func(n *Notifier) {
		n.devices = devices
	}
}

// WithLogger assigns a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithChannelName labels the channel in metrics.
func WithChannelName(name string) Option {
	return func(n *Notifier) {
		if name != "" {
			n.channelName = name
		}
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(alertReader AlertReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if alertReader == nil {
		return nil, errors.New("alert notifier: nil alert reader")
	}
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		alerts:         alertReader,
		channel:        channel,
		channelName:    "webhook",
		template:       template,
		clock:          systemClock{},
		logger:         zerolog.Nop(),
		timers:         make(map[string]*time.Timer),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements AlertNotifier.
func (n *Notifier) Notify(ctx context.Context, event alertapp.AlertEvent) {
	if n == nil || n.channel == nil {
		return
	}
	device := n.lookup(ctx, event.Alert.DeviceCode)
	n.dispatch(ctx, event.Type, event.Alert, device)

	switch event.Type {
	case alertapp.EventCreated:
		n.scheduleEscalation(event.Alert)
	case alertapp.EventAcknowledged:
		n.cancelEscalation(event.Alert.ID)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	timers := n.timers
	n.timers = make(map[string]*time.Timer)
	n.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

func (n *Notifier) lookup(ctx context.Context, code string) *masterdata.Device {
	if n.devices == nil {
		return nil
	}
	device, err := n.devices.Lookup(ctx, code)
	if err != nil {
		return nil
	}
	return device
}

func (n *Notifier) dispatch(ctx context.Context, eventType string, alert alerts.Alert, device *masterdata.Device) {
	data := buildTemplateData(eventType, alert, device, n.dashboardURL)
	content, err := n.template.Render(data)
	if err != nil {
		n.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("render notification failed")
		return
	}
	if !n.shouldSend(alert.ID, eventType, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		metrics.IncNotification(n.channelName, metrics.ResultError)
		n.logger.Warn().Err(err).Str("alert_id", alert.ID).Str("event", eventType).Msg("send notification failed")
		return
	}
	metrics.IncNotification(n.channelName, metrics.ResultSuccess)
	n.markSent(alert.ID, eventType, content)
}

func (n *Notifier) scheduleEscalation(alert alerts.Alert) {
	if n.escalation <= 0 || alert.ID == "" || alert.Severity != alerts.SeverityCritical {
		return
	}
	n.mu.Lock()
	if existing, ok := n.timers[alert.ID]; ok && existing != nil {
		existing.Stop()
	}
	n.timers[alert.ID] = time.AfterFunc(n.escalation, func() {
		n.runEscalation(alert.ID)
	})
	n.mu.Unlock()
}

func (n *Notifier) cancelEscalation(alertID string) {
	if alertID == "" {
		return
	}
	n.mu.Lock()
	timer := n.timers[alertID]
	delete(n.timers, alertID)
	n.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (n *Notifier) runEscalation(alertID string) {
	n.mu.Lock()
	delete(n.timers, alertID)
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), n.requestTimeout)
	defer cancel()

	alert, err := n.alerts.GetByID(ctx, alertID)
	if err != nil || alert == nil || alert.Acknowledged {
		return
	}
	n.dispatch(ctx, eventEscalated, *alert, n.lookup(ctx, alert.DeviceCode))
}

func buildTemplateData(eventType string, alert alerts.Alert, device *masterdata.Device, dashboardURL string) TemplateData {
	data := TemplateData{
		AlertID:      alert.ID,
		Device:       alert.DeviceCode,
		AlertType:    alert.Type,
		Severity:     string(alert.Severity),
		Message:      alert.Message,
		CreatedAt:    alert.CreatedAt.UTC().Format(time.RFC3339),
		Status:       statusLabel(alert),
		Suggestion:   suggestionFor(alert),
		DashboardURL: dashboardURL,
		Event:        eventType,
		EventLabel:   eventLabel(eventType),
	}
	if device != nil {
		data.Zone = device.ZoneCode
		data.Slot = device.SlotNumber
	}
	return data
}

func statusLabel(alert alerts.Alert) string {
	if alert.Acknowledged {
		return "acknowledged"
	}
	return "open"
}

func eventLabel(event string) string {
	switch event {
	case alertapp.EventCreated:
		return "Raised"
	case alertapp.EventAcknowledged:
		return "Acknowledged"
	case eventEscalated:
		return "Escalated"
	default:
		return event
	}
}

func suggestionFor(alert alerts.Alert) string {
	switch alert.Type {
	case alerts.TypeDeviceOffline:
		return "Check sensor power and network link at the slot."
	case alerts.TypeHighPower:
		return "Inspect the charger or sensor wiring for overload."
	case alerts.TypeLowVoltage:
		return "Verify supply voltage on the zone feeder."
	}
	switch alert.Severity {
	case alerts.SeverityCritical:
		return "Investigate immediately."
	case alerts.SeverityWarning:
		return "Verify the condition and take action if needed."
	default:
		return "No action required."
	}
}

func (n *Notifier) shouldSend(alertID, eventType, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(alertID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

// markSent records a delivery and drops records that can no longer suppress one.
func (n *Notifier) markSent(alertID, eventType, content string) {
	retention := n.cooldown
	if n.dedupeWindow > retention {
		retention = n.dedupeWindow
	}
	if retention <= 0 {
		return
	}
	key := notificationKey(alertID, eventType)
	now := n.clock.Now().UTC()

	n.mu.Lock()
	defer n.mu.Unlock()
	for k, record := range n.sent {
		if now.Sub(record.at) >= retention {
			delete(n.sent, k)
		}
	}
	n.sent[key] = sendRecord{at: now, hash: hashContent(content)}
}

func (n *Notifier) trackedSends() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func notificationKey(alertID, eventType string) string {
	return alertID + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
