package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vitos/crypto_paper_trader/internal/domain"
)

// ErrNotSignal marks inbound messages that carry neither a signal nor an
// error; callers usually log them at debug level and move on.
var ErrNotSignal = errors.New("message is not a trading signal")

// PeerError is an error envelope reported by the analyzer peer.
type PeerError struct {
	Message string
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer error: %s", e.Message)
}

type envelope struct {
	Error                 string  `json:"error"`
	Symbol                string  `json:"symbol"`
	Action                string  `json:"action"`
	Confidence            float64 `json:"confidence"`
	SuggestedPositionSize float64 `json:"suggested_position_size"`
}

// DecodeSignal parses one inbound peer message into a Signal. Error
// envelopes come back as *PeerError; messages without an action field as
// ErrNotSignal.
func DecodeSignal(raw string) (*domain.Signal, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decode peer message: %w", err)
	}

	if env.Error != "" {
		return nil, &PeerError{Message: env.Error}
	}
	if env.Action == "" {
		return nil, ErrNotSignal
	}

	action := domain.SignalAction(strings.ToUpper(env.Action))
	switch action {
	case domain.SignalBuy, domain.SignalSell, domain.SignalHold:
	default:
		return nil, fmt.Errorf("unknown signal action %q", env.Action)
	}

	if env.Symbol == "" {
		return nil, errors.New("signal missing symbol")
	}
	if env.Confidence < 0 || env.Confidence > 1 {
		return nil, fmt.Errorf("signal confidence %v out of range", env.Confidence)
	}

	return &domain.Signal{
		Symbol:                env.Symbol,
		Action:                action,
		Confidence:            env.Confidence,
		SuggestedPositionSize: env.SuggestedPositionSize,
		ReceivedAt:            time.Now(),
	}, nil
}

type analysisRequest struct {
	Command string   `json:"command"`
	Symbols []string `json:"symbols"`
}

// EncodeAnalysisRequest builds the batch_analyze request sent to the peer.
func EncodeAnalysisRequest(symbols []string) (string, error) {
	if symbols == nil {
		symbols = []string{}
	}
	b, err := json.Marshal(analysisRequest{Command: "batch_analyze", Symbols: symbols})
	if err != nil {
		return "", fmt.Errorf("encode analysis request: %w", err)
	}
	return string(b), nil
}
