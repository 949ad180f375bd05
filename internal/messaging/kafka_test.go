package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagekit/compass/internal/validation"
	"github.com/voyagekit/compass/pkg/models"
)

func testBus(t *testing.T) *MessageBus {
	t.Helper()

	validator, err := validation.NewSchemaValidator()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return &MessageBus{
		validator: validator,
		topic:     "interest-signals",
		logger:    logger,
	}
}

func TestSignalMessage_Serialization(t *testing.T) {
	signal := models.InterestSignal{
		ActorID:    uuid.New(),
		Category:   "activity",
		Keyword:    "snorkeling",
		Source:     models.SignalSourceExplicit,
		Confidence: 1.0,
		Timestamp:  time.Now().UTC().Truncate(time.Second),
	}
	signalBytes, err := json.Marshal(signal)
	require.NoError(t, err)

	message := SignalMessage{
		EventID:   uuid.New(),
		Signal:    signalBytes,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}

	messageBytes, err := json.Marshal(message)
	require.NoError(t, err)

	var decoded SignalMessage
	require.NoError(t, json.Unmarshal(messageBytes, &decoded))

	assert.Equal(t, message.EventID, decoded.EventID)
	assert.Equal(t, message.RetryCount, decoded.RetryCount)

	var decodedSignal models.InterestSignal
	require.NoError(t, json.Unmarshal(decoded.Signal, &decodedSignal))
	assert.Equal(t, signal.ActorID, decodedSignal.ActorID)
	assert.Equal(t, signal.Keyword, decodedSignal.Keyword)
}

func TestDecodeSignal_ValidExplicit(t *testing.T) {
	mb := testBus(t)

	actorID := uuid.New()
	raw := []byte(`{"actor_id":"` + actorID.String() + `","category":"activity","keyword":"snorkeling","source":"explicit","confidence":0.3}`)

	signal, err := mb.decodeSignal(SignalMessage{
		EventID:   uuid.New(),
		Signal:    raw,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, actorID, signal.ActorID)
	assert.Equal(t, models.SignalSourceExplicit, signal.Source)
	// Explicit signals always carry full confidence regardless of the payload.
	assert.Equal(t, 1.0, signal.Confidence)
}

func TestDecodeSignal_InferredKeepsConfidence(t *testing.T) {
	mb := testBus(t)

	raw := []byte(`{"actor_id":"` + uuid.New().String() + `","category":"cuisine","keyword":"ramen","source":"inferred","confidence":0.4}`)

	signal, err := mb.decodeSignal(SignalMessage{EventID: uuid.New(), Signal: raw})
	require.NoError(t, err)
	assert.Equal(t, 0.4, signal.Confidence)
}

func TestDecodeSignal_MissingTimestampFallsBackToEnvelope(t *testing.T) {
	mb := testBus(t)

	envelopeTime := time.Date(2026, 8, 12, 14, 30, 0, 0, time.UTC)
	raw := []byte(`{"actor_id":"` + uuid.New().String() + `","category":"activity","keyword":"kayaking","source":"explicit"}`)

	signal, err := mb.decodeSignal(SignalMessage{
		EventID:   uuid.New(),
		Signal:    raw,
		Timestamp: envelopeTime,
	})
	require.NoError(t, err)
	assert.Equal(t, envelopeTime, signal.Timestamp)
}

func TestDecodeSignal_RejectsInvalidPayload(t *testing.T) {
	mb := testBus(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"missing actor", `{"category":"activity","keyword":"snorkeling","source":"explicit"}`},
		{"bad source", `{"actor_id":"` + uuid.New().String() + `","category":"activity","keyword":"snorkeling","source":"guessed"}`},
		{"not json", `not-json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mb.decodeSignal(SignalMessage{EventID: uuid.New(), Signal: []byte(tt.raw)})
			assert.Error(t, err)
		})
	}
}
