package messagepush

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stakebatch/batch-deposit-service/models"
	"github.com/stakebatch/batch-deposit-service/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.Init(log.Config{
		Level:   "debug",
		Outputs: []string{"stderr"},
	})
}

var (
	testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testEvents  = []models.Event{
		{Type: models.EventPaused, Account: testAccount, Timestamp: time.UnixMilli(1700000000000)},
		{Type: models.EventWithdrawn, Account: testAccount, Amount: big.NewInt(42), Timestamp: time.UnixMilli(1700000000001)},
	}
)

func TestFakeProducerPushEvents(t *testing.T) {
	producer, err := NewEventProducer(Config{UseFakeProducer: true, Topic: "events"})
	require.NoError(t, err)
	p, ok := producer.(*fakeProducer)
	require.True(t, ok)

	ctx := utils.WithTraceID(context.Background(), "trace-1")
	require.NoError(t, p.PushEvents(ctx, testEvents))

	msgs := p.drain("events")
	require.Len(t, msgs, 2)
	var msg PushMessage
	require.NoError(t, json.Unmarshal([]byte(msgs[1]), &msg))
	assert.Equal(t, BizCodeContractEvent, msg.BizCode)
	assert.Equal(t, "Withdrawn", msg.EventType)
	assert.Equal(t, testAccount.Hex(), msg.Account)
	assert.Equal(t, "trace-1", msg.RequestID)
	assert.Equal(t, int64(1700000000001), msg.Time)

	var event models.Event
	require.NoError(t, json.Unmarshal([]byte(msg.PushContent), &event))
	assert.Equal(t, models.EventWithdrawn, event.Type)
	assert.Equal(t, "42", event.Amount.String())

	// reading drains the topic
	assert.Empty(t, p.drain("events"))
	require.NoError(t, p.Close())
}

func TestFakeProducerLimit(t *testing.T) {
	p := newFakeProducer(Config{Topic: "events"})
	for i := 0; i < fakeMessageLimit+5; i++ {
		require.NoError(t, p.Produce("msg"))
	}
	require.NoError(t, p.Produce("other", WithTopic("other")))
	assert.Len(t, p.drain("events"), fakeMessageLimit)
	assert.Equal(t, []string{"other"}, p.drain("other"))
}

func TestKafkaProducerPushEvents(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	keyIsAccount := func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != testAccount.Hex() {
			return errors.New("unexpected key " + string(key))
		}
		if msg.Topic != "events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		return nil
	}
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(keyIsAccount)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(keyIsAccount)

	p := newKafkaProducer(sp, Config{Topic: "events"})
	require.NoError(t, p.PushEvents(context.Background(), testEvents))
	// nothing to send
	require.NoError(t, p.PushEvents(context.Background(), nil))
	require.NoError(t, p.Close())
}

func TestKafkaProducerFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newKafkaProducer(sp, Config{Topic: "events"})
	err := p.Produce(map[string]string{"hello": "world"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestSetupSASL(t *testing.T) {
	config := sarama.NewConfig()
	require.NoError(t, setupSASL(config, Config{Username: "user"}))
	assert.False(t, config.Net.SASL.Enable)

	err := setupSASL(config, Config{Username: "user", Password: "pass", RootCAPath: filepath.Join(t.TempDir(), "missing.pem")})
	require.Error(t, err)
	assert.False(t, config.Net.TLS.Enable)

	notPEM := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(notPEM, []byte("not a certificate"), 0o600))
	require.Error(t, setupSASL(config, Config{Username: "user", Password: "pass", RootCAPath: notPEM}))
}
