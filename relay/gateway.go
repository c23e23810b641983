package relay

import (
	"errors"
	"log/slog"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"leasenet/core/events"
	"leasenet/core/types"
	"leasenet/native/lease"
	"leasenet/observability"
)

// ErrUntrustedSender rejects messages whose verified origin address does not
// match the registered linker for the claimed source network.
var ErrUntrustedSender = errors.New("relay: untrusted sender")

// EventTypeRelayExecuted is emitted for every relay message that committed a
// settlement command.
const EventTypeRelayExecuted = "relay.executed"

// Message is an inbound cross-network payload as delivered by the messaging
// transport. SourceAddress has already been authenticated by the transport;
// the gateway only authorizes it against the linker registry.
type Message struct {
	SourceNetwork string
	SourceAddress string
	Payload       []byte
}

type settlement interface {
	BorrowRemote(borrower, collection [20]byte, assetID uint64, expires int64, originNetwork string, payment *big.Int) (*lease.Listing, error)
	SetOriginal(caller [20]byte, network string, remote [20]byte) error
}

type relayEvent struct {
	evt *types.Event
}

func (e relayEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e relayEvent) Event() *types.Event { return e.evt }

// Gateway authenticates inbound relay messages against the linker registry and
// forwards the decoded commands into the settlement engine as if they were
// local calls. Each message is processed to completion before the next is
// admitted; duplicate deliveries are naturally rejected by the engine's
// eligibility checks.
type Gateway struct {
	linkers *Registry
	engine  settlement
	admin   [20]byte
	logger  *slog.Logger
	emitter events.Emitter
}

// NewGateway wires a gateway to its linker registry and settlement engine.
// The admin identity is used as the caller for relayed administrative
// commands.
func NewGateway(linkers *Registry, engine settlement, admin [20]byte, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		linkers: linkers,
		engine:  engine,
		admin:   admin,
		logger:  logger,
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter used for executed commands. Passing
// nil resets the emitter to a no-op implementation.
func (g *Gateway) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

// Execute authorizes, decodes, and applies a single relay message. Rejected
// messages leave no state behind; the transport may retry or drop them.
func (g *Gateway) Execute(msg Message) error {
	delivery := uuid.NewString()
	logger := g.logger.With("delivery", delivery, "sourceNetwork", msg.SourceNetwork)
	registered, ok := g.linkers.Resolve(msg.SourceNetwork)
	if !ok {
		observability.RelayMetrics().Observe(msg.SourceNetwork, "unknown_network")
		logger.Warn("relay message from unregistered network")
		return ErrUnknownNetwork
	}
	if !strings.EqualFold(registered, strings.TrimSpace(msg.SourceAddress)) {
		observability.RelayMetrics().Observe(msg.SourceNetwork, "untrusted_sender")
		logger.Warn("relay message from untrusted sender", "sourceAddress", msg.SourceAddress)
		return ErrUntrustedSender
	}
	cmd, err := DecodeCommand(msg.Payload)
	if err != nil {
		observability.RelayMetrics().Observe(msg.SourceNetwork, "bad_payload")
		logger.Warn("relay payload rejected", "err", err)
		return err
	}
	if err := g.apply(msg.SourceNetwork, cmd); err != nil {
		observability.RelayMetrics().Observe(msg.SourceNetwork, "rejected")
		logger.Info("relay command rejected", "kind", uint8(cmd.Kind), "err", err)
		return err
	}
	observability.RelayMetrics().Observe(msg.SourceNetwork, "executed")
	logger.Info("relay command executed", "kind", uint8(cmd.Kind))
	g.emitter.Emit(relayEvent{evt: &types.Event{
		Type: EventTypeRelayExecuted,
		Attributes: map[string]string{
			"delivery":      delivery,
			"sourceNetwork": msg.SourceNetwork,
			"kind":          kindLabel(cmd.Kind),
		},
	}})
	return nil
}

func (g *Gateway) apply(sourceNetwork string, cmd *Command) error {
	switch cmd.Kind {
	case CommandBorrow:
		// The declared origin network is the authenticated source, not
		// whatever the payload claims.
		_, err := g.engine.BorrowRemote(cmd.Borrower, cmd.Collection, cmd.AssetID, int64(cmd.Expires), sourceNetwork, cmd.Payment)
		return err
	case CommandSetOriginal:
		return g.engine.SetOriginal(g.admin, sourceNetwork, cmd.Remote)
	default:
		return ErrBadPayload
	}
}

func kindLabel(kind CommandKind) string {
	switch kind {
	case CommandBorrow:
		return "borrow"
	case CommandSetOriginal:
		return "set_original"
	default:
		return "unknown"
	}
}
